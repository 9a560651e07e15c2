package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DeadlineMonitor compares the clock to the session deadline once per
// second. While time remains it reports the remaining duration through
// onTick; the instant the deadline elapses it fires onExpire exactly once
// and stops ticking.
type DeadlineMonitor struct {
	clock    Clock
	deadline time.Time
	interval time.Duration
	onTick   func(remaining time.Duration)
	onExpire func()
	log      zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewDeadlineMonitor(clock Clock, deadline time.Time, onTick func(time.Duration), onExpire func(), log zerolog.Logger) *DeadlineMonitor {
	return &DeadlineMonitor{
		clock:    clock,
		deadline: deadline,
		interval: time.Second,
		onTick:   onTick,
		onExpire: onExpire,
		log:      log.With().Str("component", "deadline_monitor").Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// WithInterval overrides the tick interval; tests use this to avoid
// real-time waits.
func (m *DeadlineMonitor) WithInterval(interval time.Duration) *DeadlineMonitor {
	m.interval = interval
	return m
}

// Start launches the tick loop. Call once.
func (m *DeadlineMonitor) Start() {
	go m.run()
}

func (m *DeadlineMonitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	if m.fire() {
		return
	}
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if m.fire() {
				return
			}
		}
	}
}

// fire emits one tick and reports whether the deadline elapsed. Returning
// true ends the loop, so onExpire cannot fire twice from this monitor.
func (m *DeadlineMonitor) fire() bool {
	remaining := Remaining(m.clock.Now(), m.deadline)
	if remaining > 0 {
		m.onTick(remaining)
		return false
	}
	m.log.Info().Time("deadline", m.deadline).Msg("exam deadline elapsed")
	m.onExpire()
	return true
}

// Stop halts ticking. It is idempotent and safe to call from onExpire's
// downstream path.
func (m *DeadlineMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Done is closed when the tick loop has exited.
func (m *DeadlineMonitor) Done() <-chan struct{} {
	return m.done
}
