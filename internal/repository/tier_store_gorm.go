package repository

import (
	"context"
	"fmt"
	"time"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormTierStore struct {
	db *gorm.DB
}

var _ domrepo.TierStore = (*GormTierStore)(nil)

func NewGormTierStore(db *gorm.DB) *GormTierStore {
	return &GormTierStore{db: db}
}

// Insert writes rec unless its (symbol, tier, ts) key exists. On a duplicate the existing id is
// copied back onto rec.
func (s *GormTierStore) Insert(ctx context.Context, rec models.TierResult) (bool, error) {
	b := rec.Base()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	m, err := toTierModel(rec)
	if err != nil {
		return false, err
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "tier"}, {Name: "ts"}},
		DoNothing: true,
	}).Create(&m)
	if res.Error != nil {
		return false, dbErr("insert tier record", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	var existing TierRecordModel
	err = s.db.WithContext(ctx).Select("id").
		Where("symbol = ? AND tier = ? AND ts = ?", m.Symbol, m.Tier, m.Timestamp).
		Take(&existing).Error
	if err != nil {
		return false, dbErr("lookup existing tier record", err)
	}
	b.ID = existing.ID
	return false, nil
}

func (s *GormTierStore) Get(ctx context.Context, symbol string, tier models.Tier, ts time.Time) (models.TierResult, error) {
	var m TierRecordModel
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND tier = ? AND ts = ?", symbol, string(tier), ts.UTC()).
		Take(&m).Error
	if err != nil {
		return nil, dbErr(fmt.Sprintf("get %s %s", symbol, tier), err)
	}
	return fromTierModel(m)
}

func (s *GormTierStore) Range(ctx context.Context, symbol string, tier models.Tier, from, to time.Time) ([]models.TierResult, error) {
	var rows []TierRecordModel
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND tier = ? AND ts >= ? AND ts < ?", symbol, string(tier), from.UTC(), to.UTC()).
		Order("ts ASC").
		Find(&rows).Error
	if err != nil {
		return nil, dbErr("range tier records", err)
	}
	return convertTierRows(rows)
}

func (s *GormTierStore) Latest(ctx context.Context, symbol string, tier models.Tier, limit int) ([]models.TierResult, error) {
	var rows []TierRecordModel
	q := s.db.WithContext(ctx).
		Where("symbol = ? AND tier = ?", symbol, string(tier)).
		Order("ts DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, dbErr("latest tier records", err)
	}
	return convertTierRows(rows)
}

func (s *GormTierStore) DeleteOlderThan(ctx context.Context, tier models.Tier, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("tier = ? AND ts < ?", string(tier), cutoff.UTC()).
		Delete(&TierRecordModel{})
	if res.Error != nil {
		return 0, dbErr("delete tier records", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormTierStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return dbErr("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w: %w", models.ErrFatal, err)
	}
	return nil
}

func convertTierRows(rows []TierRecordModel) ([]models.TierResult, error) {
	out := make([]models.TierResult, 0, len(rows))
	for _, m := range rows {
		r, err := fromTierModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
