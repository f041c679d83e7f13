package store

import (
	"sync"
	"time"
)

// DefaultDebounce is how long a write waits for a newer write to the same key
const DefaultDebounce = 300 * time.Millisecond

type pendingWrite struct {
	timer *time.Timer
	write func()
}

// Debouncer coalesces rapid successive writes per key into one.
// Writes to one key never overlap, and Cancel waits for a write already running.
type Debouncer struct {
	delay   time.Duration
	mu      sync.Mutex
	pending map[string]*pendingWrite
	writing map[string]*sync.Mutex
	stopped bool
}

// NewDebouncer creates a debouncer that delays writes by delay
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]*pendingWrite),
		writing: make(map[string]*sync.Mutex),
	}
}

// keyLock returns the lock serialising writes to key; d.mu must be held
func (d *Debouncer) keyLock(key string) *sync.Mutex {
	l, ok := d.writing[key]
	if !ok {
		l = &sync.Mutex{}
		d.writing[key] = l
	}
	return l
}

func run(l *sync.Mutex, write func()) {
	l.Lock()
	defer l.Unlock()
	write()
}

// Schedule runs write after the delay unless another write for key replaces it first.
// After Stop the write runs immediately.
func (d *Debouncer) Schedule(key string, write func()) {
	d.mu.Lock()
	if d.stopped {
		l := d.keyLock(key)
		d.mu.Unlock()
		run(l, write)
		return
	}

	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
	}
	p := &pendingWrite{write: write}
	p.timer = time.AfterFunc(d.delay, func() { d.fire(key, p) })
	d.pending[key] = p
	d.mu.Unlock()
}

func (d *Debouncer) fire(key string, p *pendingWrite) {
	d.mu.Lock()
	// a newer write may have replaced p after its timer already fired
	if d.pending[key] != p {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	l := d.keyLock(key)
	d.mu.Unlock()

	run(l, p.write)
}

// Cancel drops the pending write for key. If a write for key is running it returns
// once that write is done, so a following delete is not overwritten.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
		delete(d.pending, key)
	}
	l := d.keyLock(key)
	d.mu.Unlock()

	l.Lock()
	l.Unlock()
}

// Pending reports how many writes are waiting
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush runs every pending write now
func (d *Debouncer) Flush() {
	d.mu.Lock()
	type job struct {
		lock  *sync.Mutex
		write func()
	}
	batch := make([]job, 0, len(d.pending))
	for key, p := range d.pending {
		p.timer.Stop()
		batch = append(batch, job{lock: d.keyLock(key), write: p.write})
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, j := range batch {
		run(j.lock, j.write)
	}
}

// Stop flushes pending writes. Writes scheduled afterwards run synchronously.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.Flush()
}
