package telegram

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gallerybot/internal/transport"
)

type Handler func(ctx context.Context, ev transport.Event)

// Poller pulls updates with long polling and handles each one in its own
// goroutine.
type Poller struct {
	Client  *Client
	Handler Handler
	Logger  *slog.Logger
	// Timeout is the long-poll timeout passed to getUpdates.
	Timeout time.Duration
	// Backoff is the pause after a failed getUpdates call.
	Backoff time.Duration
}

// Run polls until ctx is cancelled, then waits for in-flight handlers.
func (p *Poller) Run(ctx context.Context) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	var (
		wg     sync.WaitGroup
		offset int64
	)
	defer wg.Wait()

	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := p.Client.GetUpdates(ctx, offset, int(timeout/time.Second))
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			logger.Warn("telegram: get updates failed", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			ev, ok := ToEvent(u)
			if !ok {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.Handler(context.WithoutCancel(ctx), ev)
			}()
		}
	}
}
