package common

import "runtime"

// StartThread runs fn on a dedicated OS thread. The hot-path loops
// (matching engine, publisher, trade engine, consumers) each get
// their own thread so SPSC endpoints stay bound to one thread for
// their lifetime. The returned channel closes when fn returns.
func StartThread(name string, fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(done)
		fn()
	}()
	return done
}
