package usecase

import (
	"context"
	"encoding/json"

	"TrendCascade/pkg/logger"
	"TrendCascade/pkg/queue"
)

const (
	JobValidatorRun    = "validator.run"
	JobConsolidatorRun = "consolidator.run"
)

type ValidatorJobPayload struct {
	Profile string `json:"profile,omitempty"`
}

type ConsolidatorJobPayload struct {
	WindowDays int `json:"windowDays,omitempty"`
}

// ValidatorJob runs one validator batch per queue message.
type ValidatorJob struct {
	validator *SignalValidator
	log       *logger.Logger
}

func NewValidatorJob(v *SignalValidator, lgr *logger.Logger) *ValidatorJob {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &ValidatorJob{validator: v, log: lgr}
}

func (j *ValidatorJob) Name() string { return "SignalValidator" }
func (j *ValidatorJob) Type() string { return JobValidatorRun }

func (j *ValidatorJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[ValidatorJobPayload](payload)
	if err != nil {
		return err
	}
	stats, err := j.validator.RunProfile(ctx, p.Profile)
	if err != nil {
		return err
	}
	j.log.Debug("validator job done", logger.String("profile", stats.Profile), logger.Int("processed", stats.Processed))
	return nil
}

// ConsolidatorJob runs one consolidation per queue message.
type ConsolidatorJob struct {
	consolidator *Consolidator
	log          *logger.Logger
}

func NewConsolidatorJob(c *Consolidator, lgr *logger.Logger) *ConsolidatorJob {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &ConsolidatorJob{consolidator: c, log: lgr}
}

func (j *ConsolidatorJob) Name() string { return "Consolidator" }
func (j *ConsolidatorJob) Type() string { return JobConsolidatorRun }

func (j *ConsolidatorJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[ConsolidatorJobPayload](payload)
	if err != nil {
		return err
	}
	sum, err := j.consolidator.Consolidate(ctx, p.WindowDays)
	if err != nil {
		return err
	}
	j.log.Debug("consolidator job done", logger.Int("memories_updated", sum.MemoriesUpdated))
	return nil
}

var (
	_ queue.Job = (*ValidatorJob)(nil)
	_ queue.Job = (*ConsolidatorJob)(nil)
)
