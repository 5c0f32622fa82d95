// Package cleanup tracks resources acquired during a build so they can be
// released in reverse-acquisition order when the pipeline is cancelled or
// fails, or discarded in one step when the final artifact is durable.
package cleanup

import (
	"sync"

	"github.com/sirupsen/logrus"
)

func resourceKindMapping() []string {
	return []string{"virtual-machine", "virtual-disk", "mounted-image", "temporary-directory", "network-share"}
}

// ResourceKind identifies what a registration's handle refers to.
type ResourceKind int

const (
	VirtualMachine ResourceKind = iota
	VirtualDisk
	MountedImage
	TemporaryDirectory
	NetworkShare
)

// ToString converts ResourceKind into a human readable string
func (rk ResourceKind) ToString() string {
	return resourceKindMapping()[int(rk)]
}

// ReleaseFunc releases one acquired resource. Implementations must be
// idempotent: releasing an already-released handle must return nil.
type ReleaseFunc func() error

// Registration is one ledger entry: what was acquired and how to let go
// of it.
type Registration struct {
	Kind    ResourceKind
	Handle  string
	Release ReleaseFunc
}

// ReleaseFailure records a release action that returned an error during
// a drain, so the operator can reconcile the leaked resource manually.
type ReleaseFailure struct {
	Kind   ResourceKind
	Handle string
	Err    error
}

// DrainSummary reports the outcome of one DrainAndRelease walk.
type DrainSummary struct {
	Released int
	Failed   []ReleaseFailure
}

// AllReleased reports whether every registered release action succeeded.
func (s DrainSummary) AllReleased() bool {
	return len(s.Failed) == 0
}

// Registry is the per-session ledger of acquired resources. One registry
// exists per build session and never outlives it. Register and Clear are
// called from the pipeline goroutine only; DrainAndRelease may be invoked
// from whichever goroutine first observes cancellation and executes the
// release walk at most once.
type Registry struct {
	mu            sync.Mutex
	registrations []Registration
	drained       bool

	logger *logrus.Logger
}

// NewRegistry returns an empty registry logging through the given logger,
// or the standard logger when nil.
func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		logger: logger,
	}
}

// Register appends a registration to the ledger. Call it immediately after
// the resource has been acquired, never before: a handle that does not exist
// yet must not be eligible for release.
func (r *Registry) Register(kind ResourceKind, handle string, release ReleaseFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.registrations = append(r.registrations, Registration{
		Kind:    kind,
		Handle:  handle,
		Release: release,
	})

	r.logger.WithFields(logrus.Fields{
		"kind":   kind.ToString(),
		"handle": handle,
	}).Debug("Registered resource for cleanup")
}

// Len returns the number of registrations currently held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.registrations)
}

// Snapshot returns a copy of the current registrations in append order.
func (r *Registry) Snapshot() []Registration {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make([]Registration, len(r.registrations))
	copy(snapshot, r.registrations)
	return snapshot
}

// DrainAndRelease releases every registered resource in reverse-acquisition
// order, so dependent resources go before the resources they depend on.
// A failing release action is logged and recorded in the summary but does
// not stop the walk. The walk runs at most once per registry; a second
// caller gets an empty summary.
func (r *Registry) DrainAndRelease() DrainSummary {
	r.mu.Lock()
	if r.drained {
		r.mu.Unlock()
		return DrainSummary{}
	}
	r.drained = true
	registrations := r.registrations
	r.registrations = nil
	r.mu.Unlock()

	var summary DrainSummary
	for i := len(registrations) - 1; i >= 0; i-- {
		reg := registrations[i]
		fields := logrus.Fields{
			"kind":   reg.Kind.ToString(),
			"handle": reg.Handle,
		}
		if err := reg.Release(); err != nil {
			r.logger.WithFields(fields).Warnf("Failed to release resource: %v", err)
			summary.Failed = append(summary.Failed, ReleaseFailure{
				Kind:   reg.Kind,
				Handle: reg.Handle,
				Err:    err,
			})
			continue
		}
		summary.Released++
		r.logger.WithFields(fields).Info("Released resource")
	}

	return summary
}

// Clear discards all registrations without releasing anything. Call it
// exactly once, after all phases have finished and the final artifact is
// confirmed durable: ownership of the remaining resources transfers to the
// completed artifact. A drain after Clear releases nothing.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.WithField("registrations", len(r.registrations)).Debug("Clearing cleanup registry")
	r.registrations = nil
}
