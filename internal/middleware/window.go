package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"go-news-cms/internal/model"
)

type WindowResult struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// WindowLimiter counts hits per key within a fixed window.
type WindowLimiter interface {
	Hit(ctx context.Context, key string) (WindowResult, error)
}

// RedisWindow is a fixed-window counter shared by every API instance:
// INCR the key and start its TTL on the first hit of the window.
type RedisWindow struct {
	client redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
}

func NewRedisWindow(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisWindow {
	return &RedisWindow{client: client, prefix: prefix, limit: int64(limit), window: window}
}

func (l *RedisWindow) Hit(ctx context.Context, key string) (WindowResult, error) {
	fullKey := l.prefix + ":" + key

	count, err := l.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return WindowResult{}, fmt.Errorf("incr %s: %w", fullKey, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, fullKey, l.window).Err(); err != nil {
			return WindowResult{}, fmt.Errorf("expire %s: %w", fullKey, err)
		}
	}

	if count <= l.limit {
		return WindowResult{Allowed: true, Count: count}, nil
	}

	ttl, err := l.client.TTL(ctx, fullKey).Result()
	if err != nil || ttl <= 0 {
		ttl = l.window
	}
	return WindowResult{Allowed: false, Count: count, RetryAfter: ttl}, nil
}

// maxLocalKeys bounds LocalWindow before lapsed windows are swept.
const maxLocalKeys = 1000

type localCounter struct {
	start time.Time
	count int64
}

// LocalWindow is the single-process fallback used when no redis address is
// configured. It counts hits per key in fixed windows, like RedisWindow.
type LocalWindow struct {
	limit  int64
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	keys map[string]*localCounter
}

func NewLocalWindow(limit int, window time.Duration) *LocalWindow {
	return &LocalWindow{limit: int64(limit), window: window, now: time.Now, keys: map[string]*localCounter{}}
}

func (l *LocalWindow) Hit(_ context.Context, key string) (WindowResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	counter, ok := l.keys[key]
	if !ok || now.Sub(counter.start) >= l.window {
		l.sweepLocked(now)
		counter = &localCounter{start: now}
		l.keys[key] = counter
	}
	counter.count++

	if counter.count <= l.limit {
		return WindowResult{Allowed: true, Count: counter.count}, nil
	}
	return WindowResult{Allowed: false, Count: counter.count, RetryAfter: counter.start.Add(l.window).Sub(now)}, nil
}

func (l *LocalWindow) sweepLocked(now time.Time) {
	if len(l.keys) < maxLocalKeys {
		return
	}
	for key, counter := range l.keys {
		if now.Sub(counter.start) >= l.window {
			delete(l.keys, key)
		}
	}
}

// size reports how many keys are tracked.
func (l *LocalWindow) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// Throttle limits a route per client IP. Limiter failures let the request
// through; the per-account lockout still protects credentials.
func Throttle(limiter WindowLimiter, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := limiter.Hit(r.Context(), scope+":"+ClientIP(r))
			if err != nil {
				slog.Warn("rate limiter unavailable", "scope", scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				seconds := int(math.Ceil(result.RetryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeAPIError(w, model.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
