package login

import (
	"sync"
	"sync/atomic"
)

// Flag is a one-shot latch shared by the login loops. Once set it stays set.
type Flag struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

func NewFlag() *Flag {
	return &Flag{done: make(chan struct{})}
}

// Set latches the flag. It returns true only for the call that flipped it.
func (f *Flag) Set() bool {
	if !f.set.CompareAndSwap(false, true) {
		return false
	}
	f.once.Do(func() { close(f.done) })
	return true
}

func (f *Flag) IsSet() bool {
	return f.set.Load()
}

// Done is closed once the flag is set.
func (f *Flag) Done() <-chan struct{} {
	return f.done
}
