package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"
	"TrendCascade/pkg/codec"
	pkgkafka "TrendCascade/pkg/kafka"
)

// KafkaCandlesHandler consumes closed-candle events and feeds them to CandleIngest.
type KafkaCandlesHandler struct {
	topic   string
	codec   codec.Codec
	ingest  *CandleIngest
	metrics domrepo.Metrics
}

func NewKafkaCandlesHandler(topic string, cd codec.Codec, ingest *CandleIngest, metrics domrepo.Metrics) *KafkaCandlesHandler {
	if cd == nil {
		cd = codec.JSON{}
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &KafkaCandlesHandler{topic: topic, codec: cd, ingest: ingest, metrics: metrics}
}

func (h *KafkaCandlesHandler) Topic() string { return h.topic }

// Handle marks undecodable or malformed events permanent so they go to the DLQ without retries.
func (h *KafkaCandlesHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.CandleEvent
	if err := h.codec.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("%w: decode candle: %w", models.ErrMalformedInput, err))
	}
	if !ev.CloseTime.IsZero() {
		h.metrics.RecordLatency("candle_e2e", time.Since(ev.CloseTime.Time))
	}

	if _, err := h.ingest.Ingest(ctx, ev); err != nil {
		if errors.Is(err, models.ErrMalformedInput) {
			return pkgkafka.Permanent(err)
		}
		h.metrics.RecordError("consumer_ingest")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaCandlesHandler)(nil)
