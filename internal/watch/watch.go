// Package watch declares the shape a file-watcher driver would hand to
// change detection, per spec.md §9's watch-mode coalescing note. No watcher
// implementation ships in this module.
package watch

import "time"

// ChangeSet is the debounced, coalesced set of paths a watcher aggregates
// across one debounce window before dispatching a single rebuild.
type ChangeSet struct {
	Paths         []string
	WindowStart   time.Time
	WindowEnd     time.Time
}
