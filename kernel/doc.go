// Package kernel
// Author: momentics <momentics@gmail.com>
//
// Kernel-like object graph of the broker: reference-counted objects with a
// fixed per-type operation set, per-process handle tables with access checks,
// the wait/synchronization engine, thin process/thread bookkeeping and the
// classic synchronization objects (event, mutex, semaphore).
//
// Every function in this package must be called from the reactor goroutine.
// Nothing here blocks; a wait that cannot complete immediately returns
// api.StatusPending and completes later through the thread's waker.
package kernel
