package repository

import (
	"context"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"
)

// Publisher is the slice of pkg/kafka.Producer the tier publisher needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaTierPublisher emits a TierClosedEvent per closed record, keyed by symbol.
type KafkaTierPublisher struct {
	producer Publisher
	topic    string
}

var _ domrepo.TierPublisher = (*KafkaTierPublisher)(nil)

func NewKafkaTierPublisher(p Publisher, topic string) *KafkaTierPublisher {
	return &KafkaTierPublisher{producer: p, topic: topic}
}

func (k *KafkaTierPublisher) PublishTier(ctx context.Context, rec models.TierResult) error {
	b := rec.Base()
	evt := models.TierClosedEvent{Symbol: b.Symbol, Tier: b.Tier, Record: rec}
	return k.producer.Publish(ctx, k.topic, []byte(b.Symbol), evt)
}

// NopTierPublisher drops every event. Used when Kafka is disabled.
type NopTierPublisher struct{}

func (NopTierPublisher) PublishTier(context.Context, models.TierResult) error { return nil }
