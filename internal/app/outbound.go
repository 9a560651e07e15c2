package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const outboundTimeout = 10 * time.Second

// Outbound dispatches fire-and-forget calls to the exam backend. Failures
// are logged and otherwise dropped: local state stays authoritative until a
// later successful sync or finalize.
type Outbound struct {
	log zerolog.Logger
	wg  sync.WaitGroup
}

func NewOutbound(log zerolog.Logger) *Outbound {
	return &Outbound{log: log.With().Str("component", "outbound").Logger()}
}

// Go runs fn on its own goroutine with a bounded context.
func (o *Outbound) Go(op string, fn func(ctx context.Context) error) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), outboundTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			o.log.Warn().Err(err).Str("op", op).Msg("best-effort sync failed")
		}
	}()
}

// Wait blocks until all dispatched calls have returned. Used on shutdown
// and by tests that assert on delivered payloads.
func (o *Outbound) Wait() {
	o.wg.Wait()
}
