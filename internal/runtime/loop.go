package runtime

import (
	log "github.com/sirupsen/logrus"
)

// Loop runs posted tasks one at a time on a single goroutine, in the order
// they were posted. It plays the role of a UI main loop for code that needs
// its callbacks delivered from one place.
type Loop struct {
	name  string
	queue *SubQueue[func()]
	done  chan struct{}
}

// NewLoop starts a loop. buffer sizes the hand-off channel between the
// queue and the runner; Post never blocks regardless of its value.
func NewLoop(name string, buffer int) *Loop {
	if buffer < 1 {
		buffer = 1
	}

	l := &Loop{
		name:  name,
		queue: NewSubQueue[func()](buffer),
		done:  make(chan struct{}),
	}
	l.queue.SetPaused(false)
	go l.run()
	return l
}

// Post schedules task to run on the loop goroutine. Tasks posted after Close
// are dropped.
func (l *Loop) Post(task func()) {
	if task == nil {
		return
	}
	l.queue.Enqueue(task)
}

// Close stops accepting tasks. Tasks still queued are discarded; a task that
// is already running finishes. Close does not wait, so it is safe to call
// from inside a task.
func (l *Loop) Close() {
	l.queue.Close()
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for task := range l.queue.Chan() {
		l.invoke(task)
	}
	log.WithField("loop", l.name).Trace("Loop exited")
}

func (l *Loop) invoke(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"loop":  l.name,
				"panic": r,
			}).Error("Recovered from panic in loop task")
		}
	}()
	task()
}
