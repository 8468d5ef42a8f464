package jobmanager

import (
	"context"
	"sync"
)

// jobContext is the registry's per-id record: the job's status plus, while
// running, the action that raises its cancellation signal. Records are
// stored by pointer and never mutated after insertion, so pointer identity
// is the compare-and-swap token: a CAS succeeds only against the exact
// record the caller observed, never against a look-alike installed by a
// later submission of the same id.
type jobContext struct {
	status Status
	cancel context.CancelFunc
}

func pendingContext() *jobContext {
	return &jobContext{status: StatusPending}
}

func canceledContext() *jobContext {
	return &jobContext{status: StatusCanceled}
}

func runningContext(cancel context.CancelFunc) *jobContext {
	return &jobContext{status: StatusRunning, cancel: cancel}
}

// registry maps job ids to their contexts. Every operation is atomic on a
// single key; callers loop on CAS failure rather than lock around a
// sequence of calls.
type registry[I comparable] struct {
	m sync.Map // I -> *jobContext
}

// insertIfAbsent stores ctx under id and reports true iff no entry existed.
func (r *registry[I]) insertIfAbsent(id I, ctx *jobContext) bool {
	_, loaded := r.m.LoadOrStore(id, ctx)
	return !loaded
}

func (r *registry[I]) get(id I) (*jobContext, bool) {
	v, ok := r.m.Load(id)
	if !ok {
		return nil, false
	}

	return v.(*jobContext), true
}

// replaceIfEqual swaps the entry for id from expected to next and reports
// whether the swap happened.
func (r *registry[I]) replaceIfEqual(id I, expected, next *jobContext) bool {
	return r.m.CompareAndSwap(id, expected, next)
}

// removeIfEqual deletes the entry for id only if it is still expected.
func (r *registry[I]) removeIfEqual(id I, expected *jobContext) bool {
	return r.m.CompareAndDelete(id, expected)
}

// remove unconditionally deletes the entry for id. Callers must know no
// runner can race them for the entry; runners themselves use removeIfEqual
// so they never clobber a resubmission.
func (r *registry[I]) remove(id I) {
	r.m.Delete(id)
}

// size counts the registered ids.
func (r *registry[I]) size() int {
	n := 0

	r.m.Range(func(_, _ any) bool {
		n++
		return true
	})

	return n
}

// keys returns a snapshot of the registered ids.
func (r *registry[I]) keys() []I {
	ids := []I{}

	r.m.Range(func(k, _ any) bool {
		ids = append(ids, k.(I))
		return true
	})

	return ids
}
