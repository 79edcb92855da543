package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateJob is returned when two jobs share a name; names key metrics and logs.
var ErrDuplicateJob = errors.New("duplicate job name")

// Job is one unit of work executed on every scheduler tick.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the cycle's jobs in execution order. Inventory aging must run before the
// stock check so alerts see post-expiry counts.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

// NewRegistry registers jobs in order, skipping nils. It panics on a duplicate name the same
// way http.ServeMux panics on a duplicate pattern.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{names: map[string]struct{}{}}
	for _, job := range jobs {
		if job == nil {
			continue
		}
		if err := r.Register(job); err != nil {
			panic(err)
		}
	}
	return r
}

// Register appends job to the cycle.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return errors.New("nil job")
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return errors.New("job name is required")
	}
	if r.names == nil {
		r.names = map[string]struct{}{}
	}
	if _, taken := r.names[name]; taken {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	r.names[name] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy of the registered jobs in execution order.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

// Names lists job names in execution order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		names[i] = job.Name()
	}
	return names
}
