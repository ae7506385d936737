package repository

import (
	"context"
	"time"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormSignalStore struct {
	db *gorm.DB
}

var _ domrepo.SignalStore = (*GormSignalStore)(nil)

func NewGormSignalStore(db *gorm.DB) *GormSignalStore {
	return &GormSignalStore{db: db}
}

func (s *GormSignalStore) Create(ctx context.Context, sig *models.Signal) error {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}
	m := toSignalModel(sig)
	return dbErr("create signal", s.db.WithContext(ctx).Create(&m).Error)
}

func (s *GormSignalStore) Get(ctx context.Context, id string) (*models.Signal, error) {
	var m SignalModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, dbErr("get signal "+id, err)
	}
	sig := fromSignalModel(m)
	return &sig, nil
}

func (s *GormSignalStore) ListOpen(ctx context.Context, createdBefore time.Time, limit int) ([]models.Signal, error) {
	var rows []SignalModel
	q := s.db.WithContext(ctx).
		Where("result IS NULL AND created_at <= ?", createdBefore.UTC()).
		Order("created_at ASC").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, dbErr("list open signals", err)
	}
	return convertSignalRows(rows), nil
}

// Resolve performs the conditional update and the feedback insert in one transaction. When the
// update matches no open row nothing is written.
func (s *GormSignalStore) Resolve(ctx context.Context, r models.Resolution) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := string(r.Result)
		resolvedAt := r.ResolvedAt.UTC()
		res := tx.Model(&SignalModel{}).
			Where("id = ? AND result IS NULL", r.SignalID).
			Updates(map[string]interface{}{
				"result":           result,
				"resolved_at":      resolvedAt,
				"exit_price":       r.ExitPrice,
				"price_change_pct": r.PriceChangePct,
				"elapsed_seconds":  r.ElapsedSeconds,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		fb := r.Feedback
		fb.SignalID = r.SignalID
		if fb.ID == "" {
			fb.ID = uuid.NewString()
		}
		if fb.CreatedAt.IsZero() {
			fb.CreatedAt = resolvedAt
		}
		m := toFeedbackModel(fb)
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, dbErr("resolve signal "+r.SignalID, err)
	}
	return applied, nil
}

func (s *GormSignalStore) AppendFeedback(ctx context.Context, f models.Feedback) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	m := toFeedbackModel(f)
	return dbErr("append feedback", s.db.WithContext(ctx).Create(&m).Error)
}

func (s *GormSignalStore) ResolvedBetween(ctx context.Context, from, to time.Time) ([]models.Signal, error) {
	var rows []SignalModel
	err := s.db.WithContext(ctx).
		Where("result IS NOT NULL AND resolved_at >= ? AND resolved_at < ?", from.UTC(), to.UTC()).
		Order("resolved_at ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, dbErr("resolved signals", err)
	}
	return convertSignalRows(rows), nil
}

func (s *GormSignalStore) FeedbackFor(ctx context.Context, signalIDs []string) ([]models.Feedback, error) {
	if len(signalIDs) == 0 {
		return nil, nil
	}
	var rows []FeedbackModel
	err := s.db.WithContext(ctx).
		Where("signal_id IN ?", signalIDs).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, dbErr("feedback for signals", err)
	}
	out := make([]models.Feedback, 0, len(rows))
	for _, m := range rows {
		out = append(out, fromFeedbackModel(m))
	}
	return out, nil
}

func convertSignalRows(rows []SignalModel) []models.Signal {
	out := make([]models.Signal, 0, len(rows))
	for _, m := range rows {
		out = append(out, fromSignalModel(m))
	}
	return out
}
