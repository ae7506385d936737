package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"
	"TrendCascade/pkg/logger"

	"github.com/google/uuid"
)

// FeedbackInput carries either ActualResult (WIN, LOSS, NEUTRAL) or WasAccurate. NEUTRAL counts as
// accurate only for NEUTRAL and WAIT signals.
type FeedbackInput struct {
	SignalID     string
	ActualResult string
	WasAccurate  *bool
	Rating       int
	Notes        string
}

type FeedbackResult struct {
	Signature      string                `json:"signature"`
	OldSuccessRate *float64              `json:"oldSuccessRate"`
	NewSuccessRate float64               `json:"newSuccessRate"`
	OldConfidence  *int                  `json:"oldConfidence"`
	NewConfidence  int                   `json:"newConfidence"`
	Record         *models.PatternMemory `json:"record"`
}

// FeedbackService records manual outcome feedback. It appends a feedback row and updates the
// pattern's confidence; the signal's own resolution is left to the validator.
type FeedbackService struct {
	signals domrepo.SignalStore
	updater *ConfidenceUpdater
	log     *logger.Logger
	now     func() time.Time
}

func NewFeedbackService(signals domrepo.SignalStore, updater *ConfidenceUpdater, lgr *logger.Logger) *FeedbackService {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &FeedbackService{signals: signals, updater: updater, log: lgr, now: time.Now}
}

func (s *FeedbackService) Submit(ctx context.Context, in FeedbackInput) (*FeedbackResult, error) {
	accurate, outcome, err := feedbackOutcome(in)
	if err != nil {
		return nil, err
	}
	if in.Rating < 0 || in.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 0 and 5", models.ErrMalformedInput)
	}

	sig, err := s.signals.Get(ctx, in.SignalID)
	if err != nil {
		return nil, fmt.Errorf("load signal %s: %w", in.SignalID, err)
	}
	// a flat market is the right call for a NEUTRAL or WAIT signal
	if outcome == models.OutcomeNeutral && !sig.Type.Directional() {
		accurate, outcome = true, models.OutcomeAccurate
	}

	fb := models.Feedback{
		ID:          uuid.NewString(),
		SignalID:    sig.ID,
		WasAccurate: accurate,
		Outcome:     outcome,
		Rating:      in.Rating,
		Notes:       in.Notes,
		Source:      models.SourceManual,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.signals.AppendFeedback(ctx, fb); err != nil {
		return nil, fmt.Errorf("store feedback: %w", err)
	}

	res, err := s.updater.RecordOutcome(ctx, sig.Signature(), accurate)
	if err != nil {
		return nil, err
	}

	out := &FeedbackResult{
		Signature:      res.Signature,
		NewSuccessRate: res.Current.SuccessRate,
		NewConfidence:  res.Current.ConfidenceLevel,
		Record:         res.Current,
	}
	if res.Previous != nil {
		rate, conf := res.Previous.SuccessRate, res.Previous.ConfidenceLevel
		out.OldSuccessRate, out.OldConfidence = &rate, &conf
	}
	s.log.Info("feedback recorded",
		logger.String("signal_id", sig.ID),
		logger.String("signature", res.Signature),
		logger.Bool("accurate", accurate))
	return out, nil
}

func feedbackOutcome(in FeedbackInput) (bool, models.Outcome, error) {
	if strings.TrimSpace(in.SignalID) == "" {
		return false, "", fmt.Errorf("%w: signalId is required", models.ErrMalformedInput)
	}
	if in.ActualResult != "" {
		r, ok := models.ParseSignalResult(in.ActualResult)
		if !ok {
			return false, "", fmt.Errorf("%w: actualResult must be WIN, LOSS or NEUTRAL", models.ErrMalformedInput)
		}
		switch r {
		case models.ResultWin:
			return true, models.OutcomeAccurate, nil
		case models.ResultLoss:
			return false, models.OutcomeInaccurate, nil
		default:
			return false, models.OutcomeNeutral, nil
		}
	}
	if in.WasAccurate == nil {
		return false, "", fmt.Errorf("%w: actualResult or wasAccurate is required", models.ErrMalformedInput)
	}
	if *in.WasAccurate {
		return true, models.OutcomeAccurate, nil
	}
	return false, models.OutcomeInaccurate, nil
}
