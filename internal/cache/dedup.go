package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const webhookOperation = "webhook"

// Deduper records processed webhook event ids for a TTL. Cache failures are
// logged and treated as "not seen": a redelivered payment confirmation is
// already a no-op downstream.
type Deduper struct {
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

func NewDeduper(c Cache, ttl time.Duration, log *zap.Logger) *Deduper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Deduper{cache: c, ttl: ttl, log: log}
}

func (d *Deduper) Seen(ctx context.Context, eventID string) bool {
	val, err := d.cache.Get(ctx, d.cache.GenerateKey(webhookOperation, eventID))
	if err != nil {
		d.log.Warn("webhook dedup lookup failed", zap.String("event_id", eventID), zap.Error(err))
		return false
	}
	return val != ""
}

func (d *Deduper) Mark(ctx context.Context, eventID string) {
	if err := d.cache.Set(ctx, d.cache.GenerateKey(webhookOperation, eventID), "1", d.ttl); err != nil {
		d.log.Warn("webhook dedup mark failed", zap.String("event_id", eventID), zap.Error(err))
	}
}
