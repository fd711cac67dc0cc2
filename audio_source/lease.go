package audio_source

import (
	"context"
	"fmt"
	"sync"
)

// Owner hands out exclusive access to a single source. Only one Lease is live
// at a time; the next Acquire blocks until it is released.
type Owner struct {
	source Interface
	token  chan struct{}

	mu     sync.Mutex
	holder string
}

func NewOwner(source Interface) *Owner {
	token := make(chan struct{}, 1)
	token <- struct{}{}

	return &Owner{source: source, token: token}
}

func (o *Owner) Source() Interface {
	return o.source
}

func (o *Owner) Acquire(ctx context.Context, holder string) (*Lease, error) {
	select {
	case <-o.token:
		return o.grant(holder), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire returns false immediately when another holder has the lease.
func (o *Owner) TryAcquire(holder string) (*Lease, bool) {
	select {
	case <-o.token:
		return o.grant(holder), true
	default:
		return nil, false
	}
}

// Holder names the current lease holder, or "" when the source is free.
func (o *Owner) Holder() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.holder
}

func (o *Owner) grant(holder string) *Lease {
	o.mu.Lock()
	o.holder = holder
	o.mu.Unlock()

	return &Lease{owner: o, holder: holder}
}

func (o *Owner) giveBack() {
	o.mu.Lock()
	o.holder = ""
	o.mu.Unlock()

	o.token <- struct{}{}
}

type Lease struct {
	owner  *Owner
	holder string

	mu       sync.Mutex
	released bool
}

func (l *Lease) Holder() string {
	return l.holder
}

func (l *Lease) FrameLength() int {
	return l.owner.source.FrameLength()
}

func (l *Lease) SampleRate() int {
	return l.owner.source.SampleRate()
}

func (l *Lease) Read() ([]int16, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return nil, ErrLeaseReleased
	}

	return l.owner.source.Read()
}

// Reopen closes and reopens the underlying source after an I/O failure.
func (l *Lease) Reopen() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return ErrLeaseReleased
	}

	if err := l.owner.source.Close(); err != nil {
		return fmt.Errorf("close audio source: %w", err)
	}

	if err := l.owner.source.Open(); err != nil {
		return fmt.Errorf("reopen audio source: %w", err)
	}

	return nil
}

// Release returns the source to its owner. It is safe to call more than once.
func (l *Lease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return
	}

	l.released = true
	l.owner.giveBack()
}
