package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"flowdesk/internal/domain"
	"flowdesk/internal/repository"
)

// RefreshTokenStore guarda el jti de cada refresh token vigente junto a su dueño.
// Consume es atómico: de dos llamadas concurrentes con el mismo jti solo una
// obtiene ok.
type RefreshTokenStore interface {
	Store(ctx context.Context, jti, userID string, ttl time.Duration) error
	Consume(ctx context.Context, jti string) (string, bool, error)
	Revoke(ctx context.Context, jti string) error
	RevokeUser(ctx context.Context, userID string) error
}

type refreshEntry struct {
	userID    string
	expiresAt time.Time
}

type memoryRefreshTokenStore struct {
	mu    sync.Mutex
	items map[string]refreshEntry
}

func NewMemoryRefreshTokenStore() RefreshTokenStore {
	return &memoryRefreshTokenStore{
		items: make(map[string]refreshEntry),
	}
}

func (s *memoryRefreshTokenStore) Store(_ context.Context, jti, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	s.items[jti] = refreshEntry{userID: userID, expiresAt: time.Now().UTC().Add(ttl)}
	return nil
}

func (s *memoryRefreshTokenStore) Consume(_ context.Context, jti string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[jti]
	if !ok {
		return "", false, nil
	}
	delete(s.items, jti)
	if time.Now().UTC().After(entry.expiresAt) {
		return "", false, nil
	}
	return entry.userID, true, nil
}

func (s *memoryRefreshTokenStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, jti)
	return nil
}

func (s *memoryRefreshTokenStore) RevokeUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, entry := range s.items {
		if entry.userID == userID {
			delete(s.items, jti)
		}
	}
	return nil
}

type redisKV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// redisRefreshTokenStore guarda cada jti como clave propia y además un set
// por usuario para poder revocar todas sus sesiones.
type redisRefreshTokenStore struct {
	client redisKV
	prefix string
}

const redisOpTimeout = 500 * time.Millisecond

func NewRedisRefreshTokenStore(client *redis.Client) RefreshTokenStore {
	if client == nil {
		return nil
	}
	return &redisRefreshTokenStore{
		client: client,
		prefix: "flowdesk:refresh:",
	}
}

func (s *redisRefreshTokenStore) Store(ctx context.Context, jti, userID string, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := s.client.Set(ctx, s.prefix+jti, userID, ttl).Err(); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, s.userKey(userID), jti).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, s.userKey(userID), ttl).Err()
}

// Consume usa GETDEL: la lectura y el borrado son un solo comando.
func (s *redisRefreshTokenStore) Consume(ctx context.Context, jti string) (string, bool, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return "", false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	userID, err := s.client.GetDel(ctx, s.prefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	_ = s.client.SRem(ctx, s.userKey(userID), jti).Err()
	return userID, true, nil
}

func (s *redisRefreshTokenStore) Revoke(ctx context.Context, jti string) error {
	_, _, err := s.Consume(ctx, jti)
	return err
}

func (s *redisRefreshTokenStore) RevokeUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	jtis, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	keys := make([]string, 0, len(jtis)+1)
	for _, jti := range jtis {
		keys = append(keys, s.prefix+jti)
	}
	keys = append(keys, s.userKey(userID))
	return s.client.Del(ctx, keys...).Err()
}

func (s *redisRefreshTokenStore) userKey(userID string) string {
	return s.prefix + "user:" + userID
}

// pgRefreshTokenStore guarda los jti en Postgres; sobrevive reinicios y se
// comparte entre instancias cuando no hay redis.
type pgRefreshTokenStore struct {
	sessions repository.SessionRepository
	now      func() time.Time
}

func NewPgRefreshTokenStore(sessions repository.SessionRepository) RefreshTokenStore {
	if sessions == nil {
		return nil
	}
	return &pgRefreshTokenStore{
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *pgRefreshTokenStore) Store(ctx context.Context, jti, userID string, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	now := s.now()
	return s.sessions.Create(ctx, domain.RefreshSession{
		ID:        jti,
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
}

func (s *pgRefreshTokenStore) Consume(ctx context.Context, jti string) (string, bool, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return "", false, nil
	}
	session, err := s.sessions.Consume(ctx, jti, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return session.UserID, true, nil
}

func (s *pgRefreshTokenStore) Revoke(ctx context.Context, jti string) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	return s.sessions.Delete(ctx, jti)
}

func (s *pgRefreshTokenStore) RevokeUser(ctx context.Context, userID string) error {
	_, err := s.sessions.DeleteByUser(ctx, userID)
	return err
}

// PruneRefreshSessions borra periódicamente las sesiones expiradas hasta que
// ctx se cancele.
func PruneRefreshSessions(ctx context.Context, sessions repository.SessionRepository, every time.Duration, logger *zap.Logger) {
	if every <= 0 {
		every = time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sessions.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("prune refresh sessions failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("pruned refresh sessions", zap.Int64("removed", removed))
			}
		}
	}
}
