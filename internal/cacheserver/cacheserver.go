// Package cacheserver implements the reference HTTP remote-cache service
// (spec.md §4.7): PUT/GET/HEAD /v1/artifacts/{key} over the sharded local
// store, with the PUT validation chain from §4.7/§8 scenario 4.
package cacheserver

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"polykit/internal/artifact"
	"polykit/internal/store"
)

const minKeyHexLen = 32

// Server is the reference cache HTTP service.
type Server struct {
	Store           *store.Store
	MaxArtifactSize int64
	Logger          hclog.Logger
}

// New constructs a Server backed by s.
func New(s *store.Store, maxArtifactSize int64, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Server{Store: s, MaxArtifactSize: maxArtifactSize, Logger: logger}
}

// Handler returns an http.Handler routing /v1/artifacts/{key}.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/artifacts/", s.handleArtifact)
	return mux
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/v1/artifacts/")
	if key == "" {
		writeError(w, http.StatusNotFound, "missing artifact key")
		return
	}

	switch r.Method {
	case http.MethodPut:
		s.handlePut(w, r, key)
	case http.MethodGet:
		s.handleGet(w, key)
	case http.MethodHead:
		s.handleHead(w, key)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, key string) {
	if !isValidKey(key) {
		writeError(w, http.StatusUnprocessableEntity, "key must be hex and at least 32 characters")
		return
	}

	var reader io.Reader = r.Body
	if s.MaxArtifactSize > 0 {
		reader = io.LimitReader(r.Body, s.MaxArtifactSize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}
	if s.MaxArtifactSize > 0 && int64(len(body)) > s.MaxArtifactSize {
		writeError(w, http.StatusRequestEntityTooLarge, "artifact exceeds maximum size")
		return
	}

	a, err := artifact.FromCompressed(body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "artifact failed to parse: "+err.Error())
		return
	}
	if err := (artifact.Verifier{}).Verify(a, ""); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "artifact failed verification: "+err.Error())
		return
	}
	if a.Metadata.CacheKeyHash != key {
		writeError(w, http.StatusUnprocessableEntity, "artifact cache_key_hash does not match URL key")
		return
	}

	if s.Store.Has(key) {
		writeError(w, http.StatusConflict, "artifact already exists for this key")
		return
	}

	if err := s.Store.Store(key, body, store.Metadata{
		Hash:         key,
		Size:         int64(len(body)),
		CacheKeyHash: a.Metadata.CacheKeyHash,
		CreatedAt:    a.Metadata.CreatedAt,
	}); err != nil {
		if err == store.ErrAlreadyExists {
			writeError(w, http.StatusConflict, "artifact already exists for this key")
			return
		}
		writeError(w, http.StatusInternalServerError, "storing artifact: "+err.Error())
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleGet(w http.ResponseWriter, key string) {
	data, err := s.Store.Read(key)
	if err != nil {
		if err == store.ErrNotFound {
			writeError(w, http.StatusNotFound, "artifact not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "reading artifact: "+err.Error())
		return
	}
	s.setArtifactHeaders(w, key, len(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleHead(w http.ResponseWriter, key string) {
	meta, err := s.Store.ReadMetadata(key)
	if err != nil {
		if err == store.ErrNotFound {
			writeError(w, http.StatusNotFound, "artifact not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "reading artifact metadata: "+err.Error())
		return
	}
	s.setArtifactHeaders(w, key, int(meta.Size))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) setArtifactHeaders(w http.ResponseWriter, key string, size int) {
	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Length", strconv.Itoa(size))
	w.Header().Set("X-Artifact-Hash", key)
}

func isValidKey(key string) bool {
	if len(key) < minKeyHexLen {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
