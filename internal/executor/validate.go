package executor

import (
	"strings"

	"polykit/internal/polyerr"
)

const maxCommandBytes = 10000

// shellMetacharacters are rejected in strict mode (spec.md §4.8).
var shellMetacharacters = []string{";", "&&", "||", "|", "`", "$"}

// ValidateCommand enforces spec.md §4.8's safety checks on a task's command
// string before it is ever spawned via a shell.
func ValidateCommand(command string, strict bool) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return &polyerr.AdapterError{Component: "executor", Message: "command is empty"}
	}
	if len(command) > maxCommandBytes {
		return &polyerr.AdapterError{Component: "executor", Message: "command exceeds maximum length"}
	}
	if strings.ContainsRune(command, 0) {
		return &polyerr.AdapterError{Component: "executor", Message: "command contains a NUL byte"}
	}
	if strings.ContainsAny(trimmed, "\r\n") {
		return &polyerr.AdapterError{Component: "executor", Message: "command contains an embedded line break"}
	}
	if strict {
		for _, meta := range shellMetacharacters {
			if strings.Contains(trimmed, meta) {
				return &polyerr.AdapterError{Component: "executor", Message: "command contains disallowed shell metacharacter " + meta}
			}
		}
	}
	return nil
}
