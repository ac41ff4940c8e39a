//go:build windows

package ring

import "sync/atomic"

// newWaitPair on Windows creates (or opens) two named auto-reset
// events per queue, exactly as the teacher's queueState.init does for
// can-push/can-pop.
func newWaitPair(name string, create bool, _, _ *atomic.Uint32) (notEmpty, notFull signal, err error) {
	notEmpty, err = newSignal(name+"-notempty", create)
	if err != nil {
		return nil, nil, err
	}
	notFull, err = newSignal(name+"-notfull", create)
	if err != nil {
		notEmpty.close()
		return nil, nil, err
	}
	return notEmpty, notFull, nil
}
