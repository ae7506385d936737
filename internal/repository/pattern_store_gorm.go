package repository

import (
	"context"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormPatternStore struct {
	db *gorm.DB
}

var _ domrepo.PatternMemoryStore = (*GormPatternStore)(nil)

func NewGormPatternStore(db *gorm.DB) *GormPatternStore {
	return &GormPatternStore{db: db}
}

func (s *GormPatternStore) Get(ctx context.Context, signature string) (*models.PatternMemory, error) {
	var m PatternMemoryModel
	if err := s.db.WithContext(ctx).Where("signature = ?", signature).Take(&m).Error; err != nil {
		return nil, dbErr("get pattern "+signature, err)
	}
	p := fromPatternModel(m)
	return &p, nil
}

func (s *GormPatternStore) GetFresh(ctx context.Context, signature string) (*models.PatternMemory, error) {
	return s.Get(ctx, signature)
}

// Upsert replaces every column of the row keyed by p.Signature.
func (s *GormPatternStore) Upsert(ctx context.Context, p *models.PatternMemory) error {
	m := toPatternModel(p)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "signature"}},
		UpdateAll: true,
	}).Create(&m).Error
	return dbErr("upsert pattern "+p.Signature, err)
}

func (s *GormPatternStore) Top(ctx context.Context, limit int) ([]models.PatternMemory, error) {
	var rows []PatternMemoryModel
	q := s.db.WithContext(ctx).Order("confidence_level DESC").Order("success_rate DESC").Order("signature ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, dbErr("top patterns", err)
	}
	out := make([]models.PatternMemory, 0, len(rows))
	for _, m := range rows {
		out = append(out, fromPatternModel(m))
	}
	return out, nil
}
