// Package msgqueue
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Win32-style per-thread message queues built on the kernel object, wait and
// reactor primitives: sent messages with reply round-trips and timeouts,
// posted and hardware input messages, paint notifications and window timers.
//
// A queue is a waitable kernel object owned by its thread. It becomes
// signaled when a wake bit selected by the thread's wake mask is set, which
// is how a thread blocked in a multi-object wait learns about new input.
package msgqueue
