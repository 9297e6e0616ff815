package pagination

import "sync"

// Loop runs closures one at a time on a dedicated goroutine.
// It is the single execution context that owns controller state.
type Loop struct {
	tasks   chan func()
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewLoop starts a loop with the given task buffer.
func NewLoop(buffer int) *Loop {
	if buffer < 0 {
		buffer = 0
	}
	l := &Loop{
		tasks:   make(chan func(), buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		select {
		case <-l.done:
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post queues fn and returns immediately.
// It returns false when the loop has been closed; fn is then never run.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish.
// Must not be called from the loop goroutine itself.
func (l *Loop) Call(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		// Close lets a running task finish; after that, finished tells
		// whether fn ran or was dropped with the rest of the queue.
		<-l.stopped
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Close stops the loop and waits for the running task to return.
// Queued tasks are dropped.
func (l *Loop) Close() {
	l.once.Do(func() {
		close(l.done)
	})
	<-l.stopped
}
