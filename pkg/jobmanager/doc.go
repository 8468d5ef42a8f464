// Package jobmanager coordinates parallel asynchronous jobs.
//
// A Job is an identified, lazy producer of notifications and results.
// Submit dispatches jobs concurrently under a configurable concurrency cap,
// Tap runs a job inline on the consumer while still routing its
// notifications to the shared stream, and Cancel interrupts a job by id.
// Per-job progress is aggregated onto a single shared notifications stream;
// completions and failures are reported as Events on a shared, lossy event
// stream. Cancellation is silent.
//
// A Manager owns the id-keyed registry of in-flight jobs, the bounded
// queues between producers and consumers, and the per-job cancellation
// protocol. The registry is coordinated entirely through single-key
// compare-and-swap operations, reconciling the three concurrent actors per
// job: the submitter, the executing runner, and an external canceller.
package jobmanager
