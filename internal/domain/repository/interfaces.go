package repository

import (
	"context"
	"time"

	"TrendCascade/internal/domain/models"
)

// TierStore keeps tier records keyed by (symbol, tier, timestamp).
type TierStore interface {
	// Insert appends rec. A record already present for the same key is left untouched and
	// inserted is false.
	Insert(ctx context.Context, rec models.TierResult) (inserted bool, err error)
	// Get returns models.ErrNotFound when no record exists for the key.
	Get(ctx context.Context, symbol string, tier models.Tier, ts time.Time) (models.TierResult, error)
	// Range returns records with from <= timestamp < to, oldest first.
	Range(ctx context.Context, symbol string, tier models.Tier, from, to time.Time) ([]models.TierResult, error)
	// Latest returns up to limit records, newest first.
	Latest(ctx context.Context, symbol string, tier models.Tier, limit int) ([]models.TierResult, error)
	DeleteOlderThan(ctx context.Context, tier models.Tier, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// PatternMemoryStore upserts pattern memory by signature.
type PatternMemoryStore interface {
	// Get returns models.ErrNotFound for an unseen signature. It may be served from a cache.
	Get(ctx context.Context, signature string) (*models.PatternMemory, error)
	// GetFresh reads the store of record. Read-modify-write under the signature lock uses it.
	GetFresh(ctx context.Context, signature string) (*models.PatternMemory, error)
	Upsert(ctx context.Context, p *models.PatternMemory) error
	// Top orders by confidence then success rate, both descending.
	Top(ctx context.Context, limit int) ([]models.PatternMemory, error)
}

type SignalStore interface {
	Create(ctx context.Context, s *models.Signal) error
	Get(ctx context.Context, id string) (*models.Signal, error)
	// ListOpen returns unresolved signals created at or before createdBefore, oldest first.
	ListOpen(ctx context.Context, createdBefore time.Time, limit int) ([]models.Signal, error)
	// Resolve marks the signal resolved only if it is still open and inserts the feedback in
	// the same transaction. applied is false when another writer resolved it first.
	Resolve(ctx context.Context, r models.Resolution) (applied bool, err error)
	AppendFeedback(ctx context.Context, f models.Feedback) error
	// ResolvedBetween returns signals resolved in [from, to).
	ResolvedBetween(ctx context.Context, from, to time.Time) ([]models.Signal, error)
	FeedbackFor(ctx context.Context, signalIDs []string) ([]models.Feedback, error)
}

type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// KeyLocker serializes work per key. The returned release func is safe to call more than once.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// TierPublisher announces closed tier records to downstream consumers.
type TierPublisher interface {
	PublishTier(ctx context.Context, rec models.TierResult) error
}

// Narrator writes the human-readable insight for a tier record.
type Narrator interface {
	Describe(ctx context.Context, rec models.TierResult) (string, error)
}

// Metrics is implemented by pkg/metrics.Recorder.
type Metrics interface {
	TierClosed(tier string)
	CandleIngested(defaulted bool)
	OutcomeRecorded(accurate bool)
	SignalResolved(profile, result string)
	ConsolidationDone(updated int, pruned int64)
	RecordError(kind string)
	RecordLatency(op string, d time.Duration)
}

type NopMetrics struct{}

func (NopMetrics) TierClosed(string)                   {}
func (NopMetrics) CandleIngested(bool)                 {}
func (NopMetrics) OutcomeRecorded(bool)                {}
func (NopMetrics) SignalResolved(string, string)       {}
func (NopMetrics) ConsolidationDone(int, int64)        {}
func (NopMetrics) RecordError(string)                  {}
func (NopMetrics) RecordLatency(string, time.Duration) {}
