package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"TrendCascade/internal/domain/models"
	"TrendCascade/internal/service/ratelimit"
	"TrendCascade/internal/usecase"
	xhttp "TrendCascade/pkg/http"
	xlogger "TrendCascade/pkg/logger"
	"TrendCascade/pkg/queue"

	"github.com/labstack/echo/v4"
)

// CascadeEchoHandler exposes ingestion, feedback, the maintenance triggers and the read side.
type CascadeEchoHandler struct {
	logger       *xlogger.Logger
	ingest       *usecase.CandleIngest
	feedback     *usecase.FeedbackService
	validator    *usecase.SignalValidator
	consolidator *usecase.Consolidator
	query        *usecase.QueryUseCase
	jobs         queue.Publisher
	limiter      *ratelimit.Limiter
}

type Option func(*CascadeEchoHandler)

// WithJobQueue enables the async variants of /api/validate and /api/consolidate.
func WithJobQueue(p queue.Publisher) Option {
	return func(h *CascadeEchoHandler) { h.jobs = p }
}

// WithIngestLimit rate limits POST /api/candles per client IP.
func WithIngestLimit(l *ratelimit.Limiter) Option {
	return func(h *CascadeEchoHandler) { h.limiter = l }
}

func NewCascadeEchoHandler(
	logger *xlogger.Logger,
	ingest *usecase.CandleIngest,
	feedback *usecase.FeedbackService,
	validator *usecase.SignalValidator,
	consolidator *usecase.Consolidator,
	query *usecase.QueryUseCase,
	opts ...Option,
) *CascadeEchoHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	h := &CascadeEchoHandler{
		logger:       logger,
		ingest:       ingest,
		feedback:     feedback,
		validator:    validator,
		consolidator: consolidator,
		query:        query,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *CascadeEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.POST("/candles", h.IngestCandle)
	g.POST("/feedback", h.Feedback)
	g.POST("/consolidate", h.Consolidate)
	g.POST("/validate", h.Validate)
	g.POST("/signals", h.CreateSignal)
	g.GET("/patterns", h.Patterns)
	g.GET("/patterns/:signature", h.Pattern)
	g.GET("/tiers", h.Tiers)
}

type FeedbackRequest struct {
	SignalID     string `json:"signalId" validate:"required"`
	ActualResult string `json:"actualResult" validate:"omitempty,oneof=WIN LOSS NEUTRAL win loss neutral"`
	WasAccurate  *bool  `json:"wasAccurate"`
	Rating       int    `json:"rating" validate:"gte=0,lte=5"`
	Notes        string `json:"notes" validate:"max=1000"`
}

type ConsolidateRequest struct {
	WindowDays int  `json:"windowDays" default:"7" validate:"gte=1,lte=365"`
	Async      bool `json:"async"`
}

type ValidateRequest struct {
	Profile string `json:"profile" validate:"max=32"`
	Async   bool   `json:"async"`
}

type SignalRequest struct {
	ID              string  `json:"id" validate:"max=64"`
	Symbol          string  `json:"symbol" validate:"required,max=32"`
	Timeframe       string  `json:"timeframe" validate:"required,max=16"`
	Pattern         string  `json:"pattern" validate:"required,max=64"`
	Type            string  `json:"signalType" validate:"required,oneof=BUY SELL NEUTRAL WAIT"`
	EntryPrice      float64 `json:"entryPrice" validate:"gt=0"`
	Probability     float64 `json:"probability" validate:"gte=0,lte=100"`
	MarketCondition string  `json:"marketCondition" validate:"max=64"`
}

type TiersRequest struct {
	Symbol string `query:"symbol" validate:"required,max=32"`
	Tier   string `query:"tier" default:"M1"`
	Limit  int    `query:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type PatternsRequest struct {
	Limit int `query:"limit" default:"10" validate:"gte=1,lte=100"`
}

type JobAccepted struct {
	Job     string      `json:"job"`
	Payload interface{} `json:"payload"`
}

func (h *CascadeEchoHandler) IngestCandle(c echo.Context) error {
	if h.limiter != nil && !h.limiter.Allow("candles:"+c.RealIP()) {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many requests", http.StatusTooManyRequests))
	}
	req := &models.CandleEvent{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.ingest.Ingest(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "ingest candle", err)
	}
	if res.Inserted {
		return xhttp.CreatedResponse(c, res)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CascadeEchoHandler) Feedback(c echo.Context) error {
	req := &FeedbackRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.feedback.Submit(c.Request().Context(), usecase.FeedbackInput{
		SignalID:     req.SignalID,
		ActualResult: req.ActualResult,
		WasAccurate:  req.WasAccurate,
		Rating:       req.Rating,
		Notes:        req.Notes,
	})
	if err != nil {
		return h.fail(c, "submit feedback", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CascadeEchoHandler) Consolidate(c echo.Context) error {
	req := &ConsolidateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Async {
		return h.enqueue(c, usecase.JobConsolidatorRun, usecase.ConsolidatorJobPayload{WindowDays: req.WindowDays})
	}

	sum, err := h.consolidator.Consolidate(c.Request().Context(), req.WindowDays)
	if err != nil {
		return h.fail(c, "consolidate", err)
	}
	return xhttp.SuccessResponse(c, sum)
}

func (h *CascadeEchoHandler) Validate(c echo.Context) error {
	req := &ValidateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Async {
		return h.enqueue(c, usecase.JobValidatorRun, usecase.ValidatorJobPayload{Profile: req.Profile})
	}

	stats, err := h.validator.RunProfile(c.Request().Context(), req.Profile)
	if err != nil {
		return h.fail(c, "validate", err)
	}
	return xhttp.SuccessResponse(c, stats)
}

func (h *CascadeEchoHandler) CreateSignal(c echo.Context) error {
	req := &SignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	sig, err := h.query.CreateSignal(c.Request().Context(), models.Signal{
		ID:              req.ID,
		Symbol:          req.Symbol,
		Timeframe:       req.Timeframe,
		Pattern:         req.Pattern,
		Type:            models.SignalType(req.Type),
		EntryPrice:      req.EntryPrice,
		Probability:     req.Probability,
		MarketCondition: req.MarketCondition,
	})
	if err != nil {
		return h.fail(c, "create signal", err)
	}
	return xhttp.CreatedResponse(c, sig)
}

func (h *CascadeEchoHandler) Patterns(c echo.Context) error {
	req := &PatternsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.query.TopPatterns(c.Request().Context(), req.Limit)
	if err != nil {
		return h.fail(c, "top patterns", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *CascadeEchoHandler) Pattern(c echo.Context) error {
	p, err := h.query.Pattern(c.Request().Context(), c.Param("signature"))
	if err != nil {
		return h.fail(c, "get pattern", err)
	}
	return xhttp.SuccessResponse(c, p)
}

func (h *CascadeEchoHandler) Tiers(c echo.Context) error {
	req := &TiersRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.query.LatestTiers(c.Request().Context(), usecase.GetTiersParams{
		Symbol: req.Symbol,
		Tier:   req.Tier,
		Limit:  req.Limit,
	})
	if err != nil {
		return h.fail(c, "get tiers", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, res)
}

func (h *CascadeEchoHandler) Health(c echo.Context) error {
	if err := h.query.Ping(c.Request().Context()); err != nil {
		return h.fail(c, "health", err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *CascadeEchoHandler) enqueue(c echo.Context, job string, payload interface{}) error {
	if h.jobs == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableErrorf("job queue is disabled"))
	}
	if err := h.jobs.PublishMessage(c.Request().Context(), job, payload); err != nil {
		h.logger.Error("enqueue job", xlogger.String("job", job), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableErrorf("enqueue %s failed", job).WithError(err))
	}
	return xhttp.AcceptedResponse(c, JobAccepted{Job: job, Payload: payload})
}

func (h *CascadeEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps domain sentinels to HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	msg := err.Error()
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrMalformedInput):
		appErr = xhttp.BadRequestErrorf("%s", msg)
	case errors.Is(err, models.ErrNotFound):
		appErr = xhttp.NotFoundErrorf("%s", msg)
	case errors.Is(err, models.ErrPersistenceConflict):
		appErr = xhttp.ConflictErrorf("%s", msg)
	case errors.Is(err, models.ErrUpstreamUnavailable),
		errors.Is(err, models.ErrFatal),
		errors.Is(err, context.DeadlineExceeded):
		appErr = xhttp.UnavailableErrorf("%s", firstClause(msg))
	default:
		appErr = xhttp.InternalErrorf("internal error")
	}
	return appErr.WithError(err)
}

// firstClause keeps internal wrapping detail out of 503 bodies.
func firstClause(msg string) string {
	if i := strings.Index(msg, ": "); i > 0 {
		return msg[:i]
	}
	return msg
}
