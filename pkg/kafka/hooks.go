package kafka

import (
	"context"
	"fmt"

	"TrendCascade/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook runs around every delivery attempt. An error from BeforeHandle counts as a failed
// attempt without calling the handler.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, error)
	AfterHandle(ctx context.Context, km kafka.Message, err error)
}

type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ kafka.Message) (context.Context, error) {
	return ctx, nil
}
func (NoopHook) AfterHandle(context.Context, kafka.Message, error) {}

// HookFuncs adapts plain functions. Nil functions are no-ops.
type HookFuncs struct {
	Before func(context.Context, kafka.Message) (context.Context, error)
	After  func(context.Context, kafka.Message, error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, error) {
	if h.Before == nil {
		return ctx, nil
	}
	return h.Before(ctx, km)
}

func (h HookFuncs) AfterHandle(ctx context.Context, km kafka.Message, err error) {
	if h.After != nil {
		h.After(ctx, km, err)
	}
}

// HookChain applies BeforeHandle in order and AfterHandle in reverse. A panicking hook is turned
// into an error for Before and swallowed for After.
type HookChain struct {
	hooks []ConsumerHook
}

func NewHookChain(hooks ...ConsumerHook) *HookChain {
	filtered := make([]ConsumerHook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return &HookChain{hooks: filtered}
}

func (c *HookChain) BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, error) {
	for _, h := range c.hooks {
		next, err := safeBefore(h, ctx, km)
		if err != nil {
			return ctx, err
		}
		ctx = next
	}
	return ctx, nil
}

func (c *HookChain) AfterHandle(ctx context.Context, km kafka.Message, err error) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		safeAfter(c.hooks[i], ctx, km, err)
	}
}

func safeBefore(h ConsumerHook, ctx context.Context, km kafka.Message) (out context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = ctx, fmt.Errorf("hook panic: %v", r)
		}
	}()
	return h.BeforeHandle(ctx, km)
}

func safeAfter(h ConsumerHook, ctx context.Context, km kafka.Message, err error) {
	defer func() { _ = recover() }()
	h.AfterHandle(ctx, km, err)
}

type ctxKey string

const ctxTraceID ctxKey = "kafka_trace_id"

// TraceID returns the trace id TraceHook stored on ctx, if any.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(ctxTraceID).(string)
	return v
}

func headerValue(km kafka.Message, key string) string {
	for _, h := range km.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// TraceHook copies the trace_id header onto the context and logs failed attempts with it.
type TraceHook struct {
	Logger *logger.Logger
}

func (h TraceHook) BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, error) {
	if id := headerValue(km, "trace_id"); id != "" {
		ctx = context.WithValue(ctx, ctxTraceID, id)
	}
	return ctx, nil
}

func (h TraceHook) AfterHandle(ctx context.Context, km kafka.Message, err error) {
	if err == nil || h.Logger == nil {
		return
	}
	h.Logger.Warn("kafka handle attempt failed",
		logger.String("topic", km.Topic),
		logger.Int("partition", km.Partition),
		logger.Int64("offset", km.Offset),
		logger.String("trace_id", TraceID(ctx)),
		logger.Error(err))
}
