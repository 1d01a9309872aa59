// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the broker's single-threaded select loop: a fixed
// array of descriptor users multiplexed with poll(2) and a time-ordered list of
// one-shot timeout callbacks. All request handling runs to completion between
// two iterations of the loop; Poll is the only place the broker blocks.
package reactor
