// Package intern provides a concurrent string interner for package and task
// names, so repeated identifiers seen across the scanner, graph, and
// scheduler share one backing string rather than being copied per lookup.
package intern

import "sync"

// Table is a concurrent string interner. The zero value is ready to use.
type Table struct {
	m sync.Map // string -> string
}

// Intern returns the canonical, shared copy of s. Concurrent calls with
// equal strings always return the same underlying value.
func (t *Table) Intern(s string) string {
	if v, ok := t.m.Load(s); ok {
		return v.(string)
	}
	actual, _ := t.m.LoadOrStore(s, s)
	return actual.(string)
}

// Default is a package-level table shared by callers that don't need
// isolation between unrelated scans.
var Default = &Table{}
