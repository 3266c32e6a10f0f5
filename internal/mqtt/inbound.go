package mqtt

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Inbound command rate limit. Command handling runs blocking shell
// tools on the event loop, so a flood of retained or replayed commands
// is cut off rather than queued.
const (
	commandRateLimit    = 20
	commandRateInterval = time.Second
)

// maxLoggedPayload bounds how much of a payload is echoed to the log.
const maxLoggedPayload = 64

// logInbound records an inbound message at debug level.
func logInbound(logger *slog.Logger, topic string, payload []byte) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	shown := payload
	if len(shown) > maxLoggedPayload {
		shown = shown[:maxLoggedPayload]
	}
	logger.Debug("mqtt message received",
		"topic", topic,
		"payload", string(shown),
		"payload_size", len(payload),
	)
}

// messageRateLimiter tracks inbound message rates and drops messages
// when the rate exceeds the configured threshold. It uses atomic
// counters because it is consulted from the client's goroutine.
type messageRateLimiter struct {
	count    atomic.Int64
	dropped  atomic.Int64
	limit    int64
	interval time.Duration
	logger   *slog.Logger
}

func newMessageRateLimiter(limit int64, interval time.Duration, logger *slog.Logger) *messageRateLimiter {
	return &messageRateLimiter{
		limit:    limit,
		interval: interval,
		logger:   logger,
	}
}

// start resets the counter every interval until ctx is cancelled,
// warning when anything was dropped.
func (r *messageRateLimiter) start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count := r.count.Swap(0)
			dropped := r.dropped.Swap(0)
			if dropped > 0 {
				r.logger.Warn("mqtt commands dropped due to rate limit",
					"received", count,
					"dropped", dropped,
					"interval", r.interval.String(),
					"limit", r.limit,
				)
			}
		}
	}
}

// allow counts one message and reports whether it is within the limit.
func (r *messageRateLimiter) allow() bool {
	n := r.count.Add(1)
	if n > r.limit {
		r.dropped.Add(1)
		return false
	}
	return true
}
