package metrics

import (
	"sync"

	"github.com/vinayprograms/defender/errors"
)

// Registry is the shared table of enabled metrics flags. Callers set flags
// from arbitrary goroutines while the reporting loop takes snapshots.
type Registry struct {
	mu    sync.Mutex
	flags Flags
}

// NewRegistry returns a registry with every group disabled.
func NewRegistry() *Registry {
	return &Registry{}
}

// Set replaces the flag word of group. Unknown groups fail with
// INVALID_INPUT and leave the table untouched.
func (r *Registry) Set(group Group, flags uint32) error {
	if !group.Valid() {
		return errors.InvalidInput("unknown metrics group",
			errors.WithMetadata("group", group.String()))
	}
	r.mu.Lock()
	r.flags[group] = flags
	r.mu.Unlock()
	return nil
}

// Get returns the current flag word of group.
func (r *Registry) Get(group Group) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags.Get(group)
}

// Snapshot copies the whole table.
func (r *Registry) Snapshot() Flags {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags
}

// Reset disables every group.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.flags = Flags{}
	r.mu.Unlock()
}
