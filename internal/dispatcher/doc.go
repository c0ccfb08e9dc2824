// Package dispatcher admits jobs, runs them on a bounded set of workers and
// owns every state transition after creation.
//
// Admission is atomic with respect to other admissions. An equivalent
// non-terminal job (same de-duplication key) is returned instead of a new
// one. Otherwise the job starts immediately when a worker is free, waits in
// a bounded FIFO queue, or is rejected with QUEUE_FULL.
//
// The number of jobs in the processing state never exceeds Config.Workers.
// A slot is held until the executor has actually returned, even when the
// job record was already force-cancelled, so the number of live encoder
// processes is bounded as well.
//
// Cancellation of a pending job removes it from the queue without ever
// calling the executor. Cancellation of a processing job cancels the
// executor's context and waits up to Config.CancelGrace for it to return;
// after that the job is recorded as cancelled regardless, and a late
// executor outcome is only appended to the job's notes.
package dispatcher
