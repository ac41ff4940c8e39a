package presentsem

// signal is the platform wake-up primitive Wait parks on, the same
// contract internal/ring's queues use for their own notEmpty/notFull
// signals: set wakes anyone parked in wait; wait blocks until set or
// timeout.
type signal interface {
	wait(expected uint32, timeoutMillis int) error
	set()
	close()
}
