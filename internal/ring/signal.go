package ring

// signal is the platform wake-up primitive a blocking Wait call parks
// on: a named Windows Event when built for windows, a Linux futex on
// the control word itself on linux, and short-interval polling of that
// word on other unix systems. All realizations give the
// same contract used throughout the command and data queues:
// set wakes anyone parked in wait; wait blocks until set or timeout.
type signal interface {
	// wait blocks until set() is called or timeoutMillis elapses
	// (negative means forever). expected is the control word's value
	// as last observed by the caller right before deciding to block;
	// futex-backed signals pass it straight to the kernel so a set()
	// that lands between the caller's check and the wait syscall is
	// never lost. Event-backed signals ignore it, since a set event
	// stays signaled until a waiter consumes it.
	wait(expected uint32, timeoutMillis int) error
	set()
	close()
}
