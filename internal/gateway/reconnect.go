package gateway

import (
	"context"
	"time"
)

type ReconnectOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	OnDisconnect   func(err error, nextBackoff time.Duration)
}

// RunWithReconnect keeps a gateway connection alive with exponential
// backoff until ctx is canceled.
func RunWithReconnect(ctx context.Context, wsURL, token string, handler EventHandler, opts Options, reconnect ReconnectOptions) error {
	backoff := reconnect.InitialBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	maxBackoff := reconnect.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 10 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := RunOnce(ctx, wsURL, token, handler, opts)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if reconnect.OnDisconnect != nil {
			reconnect.OnDisconnect(err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}
