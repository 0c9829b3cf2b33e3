package lease

import (
	"context"
	"io"
	"log/slog"
	"time"

	"voice-agent-platform/pkg/logger"
	"voice-agent-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultSweepInterval is well under DefaultTTL so lost releases free
// capacity within one TTL window.
const DefaultSweepInterval = time.Minute

// Locker keeps replicas from sweeping at the same time. The sweep is
// idempotent, so the lock only saves duplicate work.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(context.Context), ok bool, err error)
}

// RedisLocker is a Locker backed by a token-checked Redis key.
type RedisLocker struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, key: key, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context) (func(context.Context), bool, error) {
	token := uuid.NewString()
	ok, err := utils.TryLock(ctx, l.rdb, l.key, token, l.ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return func(ctx context.Context) {
		if _, err := utils.Unlock(ctx, l.rdb, l.key, token); err != nil {
			logger.From(ctx).Warn("sweep lock release failed", "key", l.key, "err", err)
		}
	}, true, nil
}

type sweepFunc func(ctx context.Context) (int64, error)

// NewSweeper runs m.SweepExpired every interval until Close is called.
// locker may be nil for single-replica deployments.
// It is the caller's responsibility to call Close on the returned instance.
func NewSweeper(ctx context.Context, log *slog.Logger, m *Manager, interval time.Duration, locker Locker) io.Closer {
	return startSweeper(ctx, log, m.SweepExpired, interval, locker)
}

func startSweeper(ctx context.Context, log *slog.Logger, sweep sweepFunc, interval time.Duration, locker Locker) io.Closer {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	closed := make(chan struct{})
	ctx, cancel := context.WithCancel(logger.With(ctx, log))

	// time.Nanosecond forces an immediate first sweep; the ticker is reset to
	// interval after each run.
	ticker := time.NewTicker(time.Nanosecond)
	doTick := func() {
		defer ticker.Reset(interval)

		if locker != nil {
			unlock, ok, err := locker.TryLock(ctx)
			if err != nil {
				log.Warn("sweep lock unavailable, skipping", "err", err)
				return
			}
			if !ok {
				log.Debug("another replica holds the sweep lock, skipping")
				return
			}
			defer unlock(context.WithoutCancel(ctx))
		}

		start := time.Now()
		n, err := sweep(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("lease sweep failed", "err", err)
			}
			return
		}
		if n > 0 {
			log.Info("expired leases released", "count", n, "duration_ms", time.Since(start).Milliseconds())
		}
	}

	go func() {
		defer close(closed)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ticker.Stop()
				doTick()
			}
		}
	}()
	return &sweeper{cancel: cancel, closed: closed}
}

type sweeper struct {
	cancel context.CancelFunc
	closed chan struct{}
}

func (s *sweeper) Close() error {
	s.cancel()
	<-s.closed
	return nil
}
