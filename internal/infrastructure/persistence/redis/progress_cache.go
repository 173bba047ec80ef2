package redis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/application/query"
)

// ProgressCache implements query.ProgressCache and the invalidation hook used
// by command handlers and the payment saga.
type ProgressCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewProgressCache creates a ProgressCache. A non-positive ttl falls back to
// TTLProgressView.
func NewProgressCache(cache *Cache, ttl time.Duration) *ProgressCache {
	if ttl <= 0 {
		ttl = TTLProgressView
	}
	return &ProgressCache{cache: cache, ttl: ttl}
}

// GetProgress returns nil, nil on a miss.
func (p *ProgressCache) GetProgress(ctx context.Context, userID uuid.UUID) (*query.ProgressDTO, error) {
	return getJSON[query.ProgressDTO](ctx, p.cache, ProgressKey(userID.String()))
}

// SetProgress stores a progress view.
func (p *ProgressCache) SetProgress(ctx context.Context, dto *query.ProgressDTO) error {
	if dto == nil {
		return nil
	}
	return p.cache.Set(ctx, ProgressKey(dto.UserID.String()), dto, p.ttl)
}

// GetStatus returns nil, nil on a miss.
func (p *ProgressCache) GetStatus(ctx context.Context, userID uuid.UUID) (*query.StatusDTO, error) {
	return getJSON[query.StatusDTO](ctx, p.cache, StatusKey(userID.String()))
}

// SetStatus stores a status view.
func (p *ProgressCache) SetStatus(ctx context.Context, dto *query.StatusDTO) error {
	if dto == nil {
		return nil
	}
	return p.cache.Set(ctx, StatusKey(dto.UserID.String()), dto, p.ttl)
}

// Invalidate drops both views for a user.
func (p *ProgressCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	id := userID.String()
	return p.cache.Delete(ctx, ProgressKey(id), StatusKey(id))
}

var _ query.ProgressCache = (*ProgressCache)(nil)
