package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeliveryLimiter limita cuántos correos de verificación o reseteo se piden
// por dirección. La clave es la dirección enviada, exista o no la cuenta.
type DeliveryLimiter interface {
	Allow(ctx context.Context, key string) bool
}

type memoryDeliveryLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

// NewMemoryDeliveryLimiter crea un limitador de ventana deslizante en memoria.
func NewMemoryDeliveryLimiter(window time.Duration, max int) DeliveryLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryDeliveryLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
	}
}

func (l *memoryDeliveryLimiter) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	cutoff := now.Add(-l.window)
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		return false
	}
	l.hits[key] = append(kept, now)
	return true
}

const redisDeliveryAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisDeliveryLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

// NewRedisDeliveryLimiter comparte el conteo entre instancias vía INCR+EXPIRE.
func NewRedisDeliveryLimiter(client *redis.Client, window time.Duration, max int) DeliveryLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisDeliveryLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "flowdesk:delivery:",
	}
}

// Allow falla abierto si redis no responde: el envío de correo no debe
// bloquearse por una caída de la caché.
func (l *redisDeliveryLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	count, err := l.client.Eval(ctx, redisDeliveryAllowScript, []string{l.prefix + normalizedKey}, seconds).Int()
	if err != nil {
		return true
	}
	return count <= l.max
}
