// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable byte buffers for the broker's frame encoding. Everything here is
// used from the reactor goroutine or through sync.Pool.
package pool
