package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"

	"github.com/stackops/stackops/internal/infra/logger"
	"github.com/stackops/stackops/internal/ports"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config selects and sizes the limiter
type Config struct {
	Enabled       bool
	Backend       string
	Requests      int
	Window        time.Duration
	RedisURL      string
	RedisPoolSize int
}

// Limiter is a RateLimiter that owns resources
type Limiter interface {
	ports.RateLimiter
	Close() error
}

// New builds the configured limiter. A disabled config yields a limiter that always allows.
func New(ctx context.Context, config Config, log logger.Logger) (Limiter, error) {
	if !config.Enabled {
		log.Info(ctx, "Rate limiting disabled", nil)
		return noopLimiter{}, nil
	}
	if config.Requests <= 0 || config.Window <= 0 {
		return nil, fmt.Errorf("invalid rate limit: %d per %s", config.Requests, config.Window)
	}

	fields := map[string]interface{}{
		"backend":  config.Backend,
		"requests": config.Requests,
		"window":   config.Window.String(),
	}

	switch config.Backend {
	case BackendRedis:
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		if config.RedisPoolSize > 0 {
			opt.PoolSize = config.RedisPoolSize
		}
		client := redis.NewClient(opt)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		log.Info(ctx, "Rate limiting initialized", fields)
		return NewRedisLimiter(client, config.Requests, config.Window), nil
	case BackendMemory, "":
		log.Info(ctx, "Rate limiting initialized", fields)
		return NewMemoryLimiter(config.Requests, config.Window), nil
	default:
		return nil, fmt.Errorf("unsupported rate limit backend: %s", config.Backend)
	}
}

// RedisLimiter counts requests per key in fixed windows shared by every replica
type RedisLimiter struct {
	client   *redis.Client
	requests int
	window   time.Duration
	now      func() time.Time
}

// NewRedisLimiter creates a fixed-window limiter on client
func NewRedisLimiter(client *redis.Client, requests int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, requests: requests, window: window, now: time.Now}
}

// Allow increments the counter of the current window for key
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := l.now().UnixNano() / int64(l.window)
	windowKey := "ratelimit:" + key + ":" + strconv.FormatInt(bucket, 10)

	pipeline := l.client.Pipeline()
	incr := pipeline.Incr(ctx, windowKey)
	pipeline.Expire(ctx, windowKey, l.window)
	if _, err := pipeline.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	return incr.Val() <= int64(l.requests), nil
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// MemoryLimiter keeps one token bucket per key in process
type MemoryLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	stop     chan struct{}
	once     sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter allows requests per window per key, refilled evenly
func NewMemoryLimiter(requests int, window time.Duration) *MemoryLimiter {
	l := &MemoryLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
		idle:     3 * window,
		stop:     make(chan struct{}),
	}
	go l.cleanup(window)
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.visitor(key).Allow(), nil
}

func (l *MemoryLimiter) visitor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// cleanup drops buckets that have been idle long enough to be full again
func (l *MemoryLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			for key, v := range l.visitors {
				if time.Since(v.lastSeen) > l.idle {
					delete(l.visitors, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *MemoryLimiter) Close() error {
	l.once.Do(func() { close(l.stop) })
	return nil
}

type noopLimiter struct{}

func (noopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

func (noopLimiter) Close() error { return nil }
