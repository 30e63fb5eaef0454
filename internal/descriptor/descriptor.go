// Package descriptor parses polykit.toml package and workspace descriptors
// and validates the identifiers they declare.
package descriptor

import (
	"regexp"

	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"

	"polykit/internal/polyerr"
)

// Language is one of the five languages a package may declare.
type Language string

const (
	LangJS     Language = "js"
	LangTS     Language = "ts"
	LangPython Language = "python"
	LangGo     Language = "go"
	LangRust   Language = "rust"
)

// normalizeLanguage maps the accepted TOML spellings onto the five
// canonical tags per spec.md §6.
func normalizeLanguage(raw string) (Language, bool) {
	switch raw {
	case "js", "javascript":
		return LangJS, true
	case "ts", "typescript":
		return LangTS, true
	case "python":
		return LangPython, true
	case "go":
		return LangGo, true
	case "rust":
		return LangRust, true
	default:
		return "", false
	}
}

// Task is a named shell command attached to a package, with optional
// intra-package prerequisite tasks.
type Task struct {
	Name       string
	Command    string
	DependsOn  []string
}

// taskTable is the raw TOML table shape for a task
// (`[tasks.name] command = ... depends_on = [...]`); the bare-string form
// (`name = "command"`) is handled directly by parseTasks.
type taskTable struct {
	Command   string   `mapstructure:"command" toml:"command"`
	DependsOn []string `mapstructure:"depends_on" toml:"depends_on"`
}

// rawDescriptor mirrors the polykit.toml document shape from spec.md §6.
type rawDescriptor struct {
	Name     string                 `toml:"name"`
	Language string                 `toml:"language"`
	Public   bool                   `toml:"public"`
	Deps     rawDeps                `toml:"deps"`
	Tasks    map[string]interface{} `toml:"tasks"`
	Version  string                 `toml:"version"`
}

type rawDeps struct {
	Internal []string `toml:"internal"`
}

// Package is the immutable record produced by parsing one polykit.toml.
type Package struct {
	Name     string
	Language Language
	Public   bool
	Path     string // relative to the workspace root; set by the caller
	Deps     []string
	Tasks    []Task
	Version  string // optional
}

// rawWorkspace mirrors the optional root-level [workspace] table.
type rawWorkspace struct {
	Workspace struct {
		CacheDir        string                 `toml:"cache_dir"`
		DefaultParallel int                    `toml:"default_parallel"`
		Tasks           map[string]interface{} `toml:"tasks"`
	} `toml:"workspace"`
}

// Workspace holds the optional workspace-level defaults and inherited tasks.
type Workspace struct {
	CacheDir        string
	DefaultParallel int
	Tasks           []Task
}

// identifierPattern matches alphanumeric plus -, _, ., @.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9@._-]+$`)

// ValidateIdentifier enforces spec.md §4.1/§4.8: alphanumeric + - _ . @,
// length <= 255, no leading '.' or '-', no path separators, no "..".
func ValidateIdentifier(name string) error {
	if name == "" {
		return &polyerr.InvalidPackageNameError{Name: name, Reason: "empty"}
	}
	if len(name) > 255 {
		return &polyerr.InvalidPackageNameError{Name: name, Reason: "longer than 255 characters"}
	}
	if name[0] == '.' || name[0] == '-' {
		return &polyerr.InvalidPackageNameError{Name: name, Reason: "cannot start with '.' or '-'"}
	}
	for _, r := range name {
		if r == '/' || r == '\\' {
			return &polyerr.InvalidPackageNameError{Name: name, Reason: "must not contain a path separator"}
		}
	}
	if containsDotDot(name) {
		return &polyerr.InvalidPackageNameError{Name: name, Reason: "must not contain '..'"}
	}
	if !identifierPattern.MatchString(name) {
		return &polyerr.InvalidPackageNameError{Name: name, Reason: "contains characters outside [A-Za-z0-9@._-]"}
	}
	return nil
}

func containsDotDot(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '.' && s[i+1] == '.' {
			return true
		}
	}
	return false
}

// Parse decodes a polykit.toml package descriptor, validating every
// identifier it declares. It never silently drops a malformed entry.
func Parse(data []byte) (*Package, error) {
	var raw rawDescriptor
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, polyerr.Wrap(err, "parsing polykit.toml")
	}

	if err := ValidateIdentifier(raw.Name); err != nil {
		return nil, err
	}

	lang, ok := normalizeLanguage(raw.Language)
	if !ok {
		return nil, &polyerr.InvalidLanguageError{Language: raw.Language}
	}

	for _, dep := range raw.Deps.Internal {
		if err := ValidateIdentifier(dep); err != nil {
			return nil, err
		}
	}

	tasks, err := parseTasks(raw.Tasks)
	if err != nil {
		return nil, err
	}

	return &Package{
		Name:     raw.Name,
		Language: lang,
		Public:   raw.Public,
		Deps:     raw.Deps.Internal,
		Tasks:    tasks,
		Version:  raw.Version,
	}, nil
}

// parseTasks handles both `name = "command"` shorthand entries and
// `[tasks.name] command = "..." depends_on = [...]` table entries. Dotted
// keys that build a task table (`NAME.command`, `NAME.depends_on`) arrive as
// the table form. A dotted `NAME.depends_on` on a task already given as a
// bare string redefines that key, which the TOML decoder rejects in Parse;
// such dependencies are not attached.
func parseTasks(raw map[string]interface{}) ([]Task, error) {
	tasks := make(map[string]*Task)
	order := make([]string, 0, len(raw))

	add := func(name string) *Task {
		if t, ok := tasks[name]; ok {
			return t
		}
		t := &Task{Name: name}
		tasks[name] = t
		order = append(order, name)
		return t
	}

	for name, v := range raw {
		if err := ValidateIdentifier(name); err != nil {
			return nil, err
		}
		switch val := v.(type) {
		case string:
			t := add(name)
			t.Command = val
		case map[string]interface{}:
			var tt taskTable
			if err := mapstructure.Decode(val, &tt); err != nil {
				return nil, polyerr.Wrap(err, "decoding task table for "+name)
			}
			for _, dep := range tt.DependsOn {
				if err := ValidateIdentifier(dep); err != nil {
					return nil, err
				}
			}
			t := add(name)
			if tt.Command != "" {
				t.Command = tt.Command
			}
			t.DependsOn = append(t.DependsOn, tt.DependsOn...)
		default:
			return nil, &polyerr.InvalidPackageNameError{Name: name, Reason: "task value must be a string or table"}
		}
	}

	result := make([]Task, 0, len(order))
	for _, name := range order {
		result = append(result, *tasks[name])
	}
	return result, nil
}

// ParseWorkspace decodes the optional root-level [workspace] table.
func ParseWorkspace(data []byte) (*Workspace, error) {
	var raw rawWorkspace
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, polyerr.Wrap(err, "parsing workspace polykit.toml")
	}
	tasks, err := parseTasks(raw.Workspace.Tasks)
	if err != nil {
		return nil, err
	}
	return &Workspace{
		CacheDir:        raw.Workspace.CacheDir,
		DefaultParallel: raw.Workspace.DefaultParallel,
		Tasks:           tasks,
	}, nil
}

// InjectWorkspaceTasks adds each workspace-level task to pkg only when pkg
// does not already declare a task of the same name (spec.md §4.1).
func InjectWorkspaceTasks(pkg *Package, ws *Workspace) {
	if ws == nil {
		return
	}
	existing := make(map[string]bool, len(pkg.Tasks))
	for _, t := range pkg.Tasks {
		existing[t.Name] = true
	}
	for _, t := range ws.Tasks {
		if !existing[t.Name] {
			pkg.Tasks = append(pkg.Tasks, t)
		}
	}
}
