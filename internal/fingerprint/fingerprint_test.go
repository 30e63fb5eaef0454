package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"polykit/internal/fingerprint"
)

func TestEnvVarOrderDoesNotAffectID(t *testing.T) {
	t.Setenv("POLYKIT_TEST_A", "1")
	t.Setenv("POLYKIT_TEST_B", "2")

	root := t.TempDir()
	base := fingerprint.Inputs{
		PackageName:    "pkg",
		AbsPackagePath: root,
		TaskName:       "build",
		Command:        "make build",
		Language:       "go",
	}

	first := base
	first.EnvAllowlist = []string{"POLYKIT_TEST_A", "POLYKIT_TEST_B"}
	second := base
	second.EnvAllowlist = []string{"POLYKIT_TEST_B", "POLYKIT_TEST_A"}

	k1, err := fingerprint.Compute(first)
	require.NoError(t, err)
	k2, err := fingerprint.Compute(second)
	require.NoError(t, err)

	// collectEnvVars sorts by key regardless of allowlist order, so the two
	// computed fingerprints must carry the same ID.
	require.Equal(t, k1.ID(), k2.ID())
}

func TestIdenticalInputsProduceIdenticalID(t *testing.T) {
	k1 := &fingerprint.CacheKey{
		PackageID:           "pkg-aaaaaaaa",
		TaskName:            "build",
		Command:             "make build",
		HashAlgo:            fingerprint.HashAlgoSHA256,
		DependencyGraphHash: "deadbeef",
		ToolchainVersion:    "go-1.21.0",
		EnvVars:             []fingerprint.EnvPair{{Key: "A", Value: "1"}},
		InputFileHashes:     []fingerprint.FileHash{{Path: "main.go", Hash: "abc"}},
	}
	k2 := &fingerprint.CacheKey{
		PackageID:           "pkg-aaaaaaaa",
		TaskName:            "build",
		Command:             "make build",
		HashAlgo:            fingerprint.HashAlgoSHA256,
		DependencyGraphHash: "deadbeef",
		ToolchainVersion:    "go-1.21.0",
		EnvVars:             []fingerprint.EnvPair{{Key: "A", Value: "1"}},
		InputFileHashes:     []fingerprint.FileHash{{Path: "main.go", Hash: "abc"}},
	}
	require.Equal(t, k1.ID(), k2.ID())

	k2.Command = "make test"
	require.NotEqual(t, k1.ID(), k2.ID())
}
