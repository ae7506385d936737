package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"TrendCascade/internal/domain/models"

	"gorm.io/gorm"
)

type TierRecordModel struct {
	ID        string                `gorm:"primaryKey;size:36"`
	Symbol    string                `gorm:"size:32;not null;uniqueIndex:tier_sym_tier_ts,priority:1"`
	Tier      string                `gorm:"size:8;not null;uniqueIndex:tier_sym_tier_ts,priority:2;index:tier_tier_ts,priority:1"`
	Timestamp time.Time             `gorm:"column:ts;not null;uniqueIndex:tier_sym_tier_ts,priority:3;index:tier_tier_ts,priority:2"`
	Open      float64               `gorm:"not null"`
	High      float64               `gorm:"not null"`
	Low       float64               `gorm:"not null"`
	Close     float64               `gorm:"not null"`
	Volume    float64               `gorm:"not null;default:0"`
	Direction string                `gorm:"size:16;not null"`
	Children  []models.ChildSummary `gorm:"serializer:json"`
	Narrative string
	Metadata  map[string]string `gorm:"serializer:json"`
	Derived   string
	CreatedAt time.Time
}

func (TierRecordModel) TableName() string { return "tier_records" }

type PatternMemoryModel struct {
	Signature        string `gorm:"primaryKey;size:128"`
	Pattern          string `gorm:"size:96;not null"`
	Timeframe        string `gorm:"size:16"`
	SuccessRate      float64
	TotalOccurrences int
	AvgProbability   float64
	Timeframes       []string `gorm:"serializer:json"`
	MarketConditions []string `gorm:"serializer:json"`
	SemanticSummary  string
	ConfidenceLevel  int `gorm:"index"`
	LastUpdated      time.Time
}

func (PatternMemoryModel) TableName() string { return "pattern_memories" }

type SignalModel struct {
	ID              string     `gorm:"primaryKey;size:36"`
	Symbol          string     `gorm:"size:32;not null;index"`
	Timeframe       string     `gorm:"size:16;not null"`
	Pattern         string     `gorm:"size:96;not null"`
	SignalType      string     `gorm:"size:16;not null"`
	EntryPrice      float64    `gorm:"not null"`
	Probability     float64    `gorm:"not null;default:0"`
	MarketCondition string     `gorm:"size:64"`
	CreatedAt       time.Time  `gorm:"not null;index"`
	Result          *string    `gorm:"size:16;index"`
	ResolvedAt      *time.Time `gorm:"index"`
	ExitPrice       *float64
	PriceChangePct  *float64
	ElapsedSeconds  *int64
}

func (SignalModel) TableName() string { return "signals" }

type FeedbackModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	SignalID    string `gorm:"size:36;not null;index"`
	WasAccurate bool
	Outcome     string `gorm:"size:16"`
	Rating      int
	Notes       string
	Source      string    `gorm:"size:16"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (FeedbackModel) TableName() string { return "feedbacks" }

// AutoMigrate creates or updates every relational table.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&TierRecordModel{},
		&PatternMemoryModel{},
		&SignalModel{},
		&FeedbackModel{},
	)
}

func toTierModel(rec models.TierResult) (TierRecordModel, error) {
	b := rec.Base()
	derived, err := models.EncodeDerived(rec)
	if err != nil {
		return TierRecordModel{}, fmt.Errorf("encode derived: %w", err)
	}
	return TierRecordModel{
		ID:        b.ID,
		Symbol:    b.Symbol,
		Tier:      string(b.Tier),
		Timestamp: b.Timestamp.UTC(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.TotalVolume,
		Direction: string(b.Direction),
		Children:  b.Children,
		Narrative: b.NarrativeInsight,
		Metadata:  b.Metadata,
		Derived:   string(derived),
		CreatedAt: b.CreatedAt.UTC(),
	}, nil
}

func fromTierModel(m TierRecordModel) (models.TierResult, error) {
	base := models.TierRecord{
		ID:               m.ID,
		Symbol:           m.Symbol,
		Tier:             models.Tier(m.Tier),
		Timestamp:        m.Timestamp.UTC(),
		Open:             m.Open,
		High:             m.High,
		Low:              m.Low,
		Close:            m.Close,
		TotalVolume:      m.Volume,
		Direction:        models.Direction(m.Direction),
		Children:         m.Children,
		NarrativeInsight: m.Narrative,
		Metadata:         m.Metadata,
		CreatedAt:        m.CreatedAt.UTC(),
	}
	return models.DecodeTierResult(base, []byte(m.Derived))
}

func toPatternModel(p *models.PatternMemory) PatternMemoryModel {
	return PatternMemoryModel{
		Signature:        p.Signature,
		Pattern:          p.Pattern,
		Timeframe:        p.Timeframe,
		SuccessRate:      p.SuccessRate,
		TotalOccurrences: p.TotalOccurrences,
		AvgProbability:   p.AvgProbability,
		Timeframes:       p.Timeframes,
		MarketConditions: p.MarketConditions,
		SemanticSummary:  p.SemanticSummary,
		ConfidenceLevel:  p.ConfidenceLevel,
		LastUpdated:      p.LastUpdated.UTC(),
	}
}

func fromPatternModel(m PatternMemoryModel) models.PatternMemory {
	return models.PatternMemory{
		Signature:        m.Signature,
		Pattern:          m.Pattern,
		Timeframe:        m.Timeframe,
		SuccessRate:      m.SuccessRate,
		TotalOccurrences: m.TotalOccurrences,
		AvgProbability:   m.AvgProbability,
		Timeframes:       m.Timeframes,
		MarketConditions: m.MarketConditions,
		SemanticSummary:  m.SemanticSummary,
		ConfidenceLevel:  m.ConfidenceLevel,
		LastUpdated:      m.LastUpdated.UTC(),
	}
}

func toSignalModel(s *models.Signal) SignalModel {
	m := SignalModel{
		ID:              s.ID,
		Symbol:          s.Symbol,
		Timeframe:       s.Timeframe,
		Pattern:         s.Pattern,
		SignalType:      string(s.Type),
		EntryPrice:      s.EntryPrice,
		Probability:     s.Probability,
		MarketCondition: s.MarketCondition,
		CreatedAt:       s.CreatedAt.UTC(),
		ResolvedAt:      s.ResolvedAt,
		ExitPrice:       s.ExitPrice,
		PriceChangePct:  s.PriceChangePct,
		ElapsedSeconds:  s.ElapsedSeconds,
	}
	if !s.Open() {
		r := string(s.Result)
		m.Result = &r
	}
	return m
}

func fromSignalModel(m SignalModel) models.Signal {
	s := models.Signal{
		ID:              m.ID,
		Symbol:          m.Symbol,
		Timeframe:       m.Timeframe,
		Pattern:         m.Pattern,
		Type:            models.SignalType(m.SignalType),
		EntryPrice:      m.EntryPrice,
		Probability:     m.Probability,
		MarketCondition: m.MarketCondition,
		CreatedAt:       m.CreatedAt.UTC(),
		ExitPrice:       m.ExitPrice,
		PriceChangePct:  m.PriceChangePct,
		ElapsedSeconds:  m.ElapsedSeconds,
	}
	if m.Result != nil {
		s.Result = models.SignalResult(*m.Result)
	}
	if m.ResolvedAt != nil {
		t := m.ResolvedAt.UTC()
		s.ResolvedAt = &t
	}
	return s
}

func toFeedbackModel(f models.Feedback) FeedbackModel {
	return FeedbackModel{
		ID:          f.ID,
		SignalID:    f.SignalID,
		WasAccurate: f.WasAccurate,
		Outcome:     string(f.Outcome),
		Rating:      f.Rating,
		Notes:       f.Notes,
		Source:      string(f.Source),
		CreatedAt:   f.CreatedAt.UTC(),
	}
}

func fromFeedbackModel(m FeedbackModel) models.Feedback {
	return models.Feedback{
		ID:          m.ID,
		SignalID:    m.SignalID,
		WasAccurate: m.WasAccurate,
		Outcome:     models.Outcome(m.Outcome),
		Rating:      m.Rating,
		Notes:       m.Notes,
		Source:      models.FeedbackSource(m.Source),
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

// dbErr maps driver and gorm errors onto the domain taxonomy.
func dbErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w: %w", op, models.ErrPersistenceConflict, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone), errors.As(err, &netErr):
		return fmt.Errorf("%s: %w: %w", op, models.ErrFatal, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
