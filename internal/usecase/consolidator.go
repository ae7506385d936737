package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"
	"TrendCascade/pkg/logger"
)

const (
	DefaultWindowDays    = 7
	DefaultRetentionDays = 30
	DefaultTopN          = 5
)

type TopPattern struct {
	Signature   string  `json:"signature"`
	Pattern     string  `json:"pattern"`
	Confidence  int     `json:"confidence"`
	SuccessRate float64 `json:"successRate"`
}

type ConsolidationSummary struct {
	WindowDays      int          `json:"windowDays"`
	MemoriesUpdated int          `json:"memoriesUpdated"`
	AvgConfidence   float64      `json:"avgConfidence"`
	TopPatterns     []TopPattern `json:"topPatterns"`
	PrunedRecords   int64        `json:"prunedRecords"`
	SkippedGroups   int          `json:"skippedGroups"`
}

type ConsolidatorConfig struct {
	RetentionDays int
	TopN          int
}

// Consolidator rebuilds pattern memory from the trailing window of resolved signals and their
// feedback, then prunes old M1 records. It writes absolute values, so reruns converge.
type Consolidator struct {
	signals  domrepo.SignalStore
	patterns domrepo.PatternMemoryStore
	tiers    domrepo.TierStore
	locker   domrepo.KeyLocker
	cfg      ConsolidatorConfig
	metrics  domrepo.Metrics
	log      *logger.Logger
	now      func() time.Time
}

func NewConsolidator(
	signals domrepo.SignalStore,
	patterns domrepo.PatternMemoryStore,
	tiers domrepo.TierStore,
	locker domrepo.KeyLocker,
	cfg ConsolidatorConfig,
	metrics domrepo.Metrics,
	lgr *logger.Logger,
) *Consolidator {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &Consolidator{
		signals:  signals,
		patterns: patterns,
		tiers:    tiers,
		locker:   locker,
		cfg:      cfg,
		metrics:  metrics,
		log:      lgr,
		now:      time.Now,
	}
}

// Consolidate processes one signature group at a time. Cancellation stops between groups and
// returns the summary so far together with the context error.
func (c *Consolidator) Consolidate(ctx context.Context, windowDays int) (*ConsolidationSummary, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	start := time.Now()
	now := c.now().UTC()
	sum := &ConsolidationSummary{WindowDays: windowDays, TopPatterns: []TopPattern{}}

	resolved, err := c.signals.ResolvedBetween(ctx, now.AddDate(0, 0, -windowDays), now)
	if err != nil {
		return nil, fmt.Errorf("load resolved signals: %w", err)
	}
	groups, order := groupBySignature(resolved)

	var updated []models.PatternMemory
	for _, sig := range order {
		if err := ctx.Err(); err != nil {
			c.finish(sum, updated)
			return sum, err
		}
		rec, err := c.consolidateGroup(ctx, sig, groups[sig])
		if err != nil {
			if errors.Is(err, models.ErrInsufficientData) {
				sum.SkippedGroups++
				continue
			}
			c.metrics.RecordError("consolidate_group")
			c.log.Error("consolidate pattern", logger.String("signature", sig), logger.Error(err))
			continue
		}
		updated = append(updated, *rec)
	}

	pruned, err := c.tiers.DeleteOlderThan(ctx, models.TierM1, now.AddDate(0, 0, -c.cfg.RetentionDays))
	if err != nil {
		c.metrics.RecordError("retention")
		c.log.Error("prune M1 records", logger.Error(err))
	}
	sum.PrunedRecords = pruned
	c.finish(sum, updated)

	c.metrics.ConsolidationDone(sum.MemoriesUpdated, sum.PrunedRecords)
	c.metrics.RecordLatency("consolidate", time.Since(start))
	c.log.Info("consolidation done",
		logger.Int("window_days", windowDays),
		logger.Int("memories_updated", sum.MemoriesUpdated),
		logger.Int("skipped_groups", sum.SkippedGroups),
		logger.Int64("pruned", sum.PrunedRecords))
	return sum, nil
}

func (c *Consolidator) finish(sum *ConsolidationSummary, updated []models.PatternMemory) {
	sum.MemoriesUpdated = len(updated)
	if len(updated) == 0 {
		return
	}
	total := 0
	for _, p := range updated {
		total += p.ConfidenceLevel
	}
	sum.AvgConfidence = float64(total) / float64(len(updated))

	sorted := append([]models.PatternMemory(nil), updated...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ConfidenceLevel != sorted[j].ConfidenceLevel {
			return sorted[i].ConfidenceLevel > sorted[j].ConfidenceLevel
		}
		if sorted[i].SuccessRate != sorted[j].SuccessRate {
			return sorted[i].SuccessRate > sorted[j].SuccessRate
		}
		return sorted[i].Signature < sorted[j].Signature
	})
	if len(sorted) > c.cfg.TopN {
		sorted = sorted[:c.cfg.TopN]
	}
	sum.TopPatterns = make([]TopPattern, 0, len(sorted))
	for _, p := range sorted {
		sum.TopPatterns = append(sum.TopPatterns, TopPattern{
			Signature:   p.Signature,
			Pattern:     p.Pattern,
			Confidence:  p.ConfidenceLevel,
			SuccessRate: p.SuccessRate,
		})
	}
}

func (c *Consolidator) consolidateGroup(ctx context.Context, signature string, group []models.Signal) (*models.PatternMemory, error) {
	ids := make([]string, 0, len(group))
	for _, s := range group {
		ids = append(ids, s.ID)
	}
	feedback, err := c.signals.FeedbackFor(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load feedback: %w", err)
	}
	if len(feedback) == 0 {
		return nil, models.ErrInsufficientData
	}

	release, err := c.locker.Lock(ctx, patternLockKey(signature))
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := c.patterns.GetFresh(ctx, signature)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("load pattern: %w", err)
	}
	rec := rebuildPattern(signature, existing, group, feedback)
	if err := c.patterns.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("upsert pattern: %w", err)
	}
	return rec, nil
}

// rebuildPattern derives the record for one group. Every field depends only on the group and the
// existing record in a way that a second pass leaves unchanged.
func rebuildPattern(signature string, existing *models.PatternMemory, group []models.Signal, feedback []models.Feedback) *models.PatternMemory {
	rec := &models.PatternMemory{Signature: signature}
	if existing != nil {
		*rec = *existing
	}
	if rec.Pattern == "" {
		rec.Pattern, rec.Timeframe = group[0].Pattern, group[0].Timeframe
	}

	accurate := 0
	for _, f := range feedback {
		if f.WasAccurate {
			accurate++
		}
	}
	rec.SuccessRate = float64(accurate) / float64(len(feedback)) * 100

	var probSum float64
	var newest time.Time
	for _, s := range group {
		probSum += s.Probability
		if s.ResolvedAt != nil && s.ResolvedAt.After(newest) {
			newest = *s.ResolvedAt
		}
	}
	rec.AvgProbability = probSum / float64(len(group))

	rec.Timeframes = unionTimeframes(rec.Timeframes, group)
	rec.MarketConditions = recentConditions(rec.MarketConditions, group)
	rec.TotalOccurrences = max(rec.TotalOccurrences, len(group))
	rec.ConfidenceLevel = models.Confidence(rec.SuccessRate, rec.TotalOccurrences)
	if newest.After(rec.LastUpdated) {
		rec.LastUpdated = newest.UTC()
	}
	rec.SemanticSummary = SemanticSummary(rec)
	return rec
}

func groupBySignature(signals []models.Signal) (map[string][]models.Signal, []string) {
	groups := make(map[string][]models.Signal)
	for _, s := range signals {
		sig := s.Signature()
		groups[sig] = append(groups[sig], s)
	}
	order := make([]string, 0, len(groups))
	for sig := range groups {
		order = append(order, sig)
	}
	sort.Strings(order)
	return groups, order
}

func unionTimeframes(existing []string, group []models.Signal) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+1)
	for _, tf := range existing {
		if tf != "" && !seen[tf] {
			seen[tf] = true
			out = append(out, tf)
		}
	}
	for _, s := range group {
		if s.Timeframe != "" && !seen[s.Timeframe] {
			seen[s.Timeframe] = true
			out = append(out, s.Timeframe)
		}
	}
	return out
}

// recentConditions puts the group's labels first, newest resolution first, then the older ones.
func recentConditions(existing []string, group []models.Signal) []string {
	byRecency := append([]models.Signal(nil), group...)
	sort.SliceStable(byRecency, func(i, j int) bool {
		return resolvedOrCreated(byRecency[i]).After(resolvedOrCreated(byRecency[j]))
	})

	seen := make(map[string]bool)
	out := make([]string, 0, models.MaxMarketConditions)
	add := func(label string) {
		if label == "" || seen[label] || len(out) >= models.MaxMarketConditions {
			return
		}
		seen[label] = true
		out = append(out, label)
	}
	for _, s := range byRecency {
		add(s.MarketCondition)
	}
	for _, label := range existing {
		add(label)
	}
	return out
}

func resolvedOrCreated(s models.Signal) time.Time {
	if s.ResolvedAt != nil {
		return *s.ResolvedAt
	}
	return s.CreatedAt
}

// SemanticSummary is the deterministic description stored on a pattern memory record.
func SemanticSummary(p *models.PatternMemory) string {
	quality := "LOW"
	switch {
	case p.SuccessRate >= 70:
		quality = "HIGH"
	case p.SuccessRate >= 55:
		quality = "MEDIUM"
	}
	reliability := "em validação"
	switch {
	case p.TotalOccurrences >= 20:
		reliability = "confiável"
	case p.TotalOccurrences >= 10:
		reliability = "moderadamente testado"
	}
	tfs := "-"
	if len(p.Timeframes) > 0 {
		tfs = strings.Join(p.Timeframes, ", ")
	}
	return fmt.Sprintf("%s quality, %s: %s success %.1f%%, avg probability %.1f%%, %d occurrences, timeframes %s",
		quality, reliability, p.Pattern, p.SuccessRate, p.AvgProbability, p.TotalOccurrences, tfs)
}
