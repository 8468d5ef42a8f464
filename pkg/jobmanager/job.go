package jobmanager

import (
	"context"
	"iter"
)

type itemKind int

const (
	itemNotification itemKind = iota + 1
	itemResult
)

// Item is one element of a job's sequence: either a notification routed to
// the manager's shared notifications stream, or a result delivered to a tap
// consumer. Construct items with NotifyItem and ResultItem.
type Item[N, R any] struct {
	kind         itemKind
	notification N
	result       R
}

// NotifyItem wraps a notification payload as a job sequence element.
func NotifyItem[N, R any](n N) Item[N, R] {
	return Item[N, R]{kind: itemNotification, notification: n}
}

// ResultItem wraps a result payload as a job sequence element.
func ResultItem[N, R any](r R) Item[N, R] {
	return Item[N, R]{kind: itemResult, result: r}
}

// Job is a unit of work identified by ID.
//
// Run returns the job's lazy sequence. It is invoked once, by the runner,
// with a context that is canceled when the job is canceled or the manager
// shuts down. The sequence may be finite or infinite; the job terminates
// when the sequence ends, and yielding a non-nil error terminates it as
// failed. Producers may ignore the context entirely: the runner stops
// consuming the sequence promptly once the context is canceled, and a
// pull-based producer stops with it.
type Job[I comparable, N, R any] struct {
	ID  I
	Run func(ctx context.Context) iter.Seq2[Item[N, R], error]
}
