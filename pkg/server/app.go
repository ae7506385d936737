package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TrendCascade/pkg/config"
	xhttp "TrendCascade/pkg/http"
	pkgkafka "TrendCascade/pkg/kafka"
	applogger "TrendCascade/pkg/logger"
	"TrendCascade/pkg/queue"
)

// JobQueue is satisfied by queue.RedisQueue and queue.LocalQueue.
type JobQueue interface {
	queue.Publisher
	RegisterJobs(jobs ...queue.Job)
	Start() error
	Stop(ctx context.Context) error
}

// Closer releases an infrastructure client on shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	handler    xhttp.Handler
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	candles    pkgkafka.MessageHandler
	jobs       JobQueue
	scheduler  *Scheduler
	closers    []Closer
}

type Option func(*App)

// WithConsumer attaches the Kafka consumer and the handler it dispatches to.
func WithConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) Option {
	return func(a *App) { a.consumer, a.candles = c, h }
}

func WithJobQueue(q JobQueue, jobs ...queue.Job) Option {
	return func(a *App) {
		a.jobs = q
		q.RegisterJobs(jobs...)
	}
}

func WithScheduler(s *Scheduler) Option {
	return func(a *App) { a.scheduler = s }
}

// WithClosers registers clients to close after everything else has stopped, in order.
func WithClosers(cs ...Closer) Option {
	return func(a *App) { a.closers = append(a.closers, cs...) }
}

func New(cfg *config.Config, l *applogger.Logger, handler xhttp.Handler, opts ...Option) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	a := &App{cfg: cfg, log: l, handler: handler}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.Shutdown(ctx)
}

// Start launches the workers, the consumer, the scheduler and the HTTP server without blocking.
func (a *App) Start(ctx context.Context) error {
	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(metricsPath),
		xhttp.WithLogger(a.log),
	)

	if a.jobs != nil {
		if err := a.jobs.Start(); err != nil {
			a.log.Error("job queue start error", applogger.Error(err))
			return err
		}
		a.log.Info("job queue started")
	}

	if a.consumer != nil && a.candles != nil {
		a.consumer.RegisterHandler(a.candles)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer error", applogger.Error(err))
			return err
		}
		a.log.Info("candle consumer registered", applogger.String("topic", a.candles.Topic()))
	}

	if a.scheduler != nil {
		a.scheduler.Start(ctx)
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// Shutdown stops intake first (HTTP, consumer, scheduler), then drains the job queue and closes
// the infrastructure clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.shutdownTimeout())
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.jobs != nil {
		if err := a.jobs.Stop(shutdownCtx); err != nil {
			a.log.Warn("job queue stop error", applogger.Error(err))
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("client", c.Name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}
