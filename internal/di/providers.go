package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	domrepo "TrendCascade/internal/domain/repository"
	"TrendCascade/internal/handler/api"
	"TrendCascade/internal/repository"
	"TrendCascade/internal/service/lock"
	"TrendCascade/internal/service/narrative"
	"TrendCascade/internal/service/quote"
	"TrendCascade/internal/service/ratelimit"
	"TrendCascade/internal/usecase"
	"TrendCascade/pkg/cache"
	pkgch "TrendCascade/pkg/clickhouse"
	"TrendCascade/pkg/codec"
	"TrendCascade/pkg/config"
	"TrendCascade/pkg/database"
	"TrendCascade/pkg/indicators"
	pkgkafka "TrendCascade/pkg/kafka"
	"TrendCascade/pkg/logger"
	"TrendCascade/pkg/metrics"
	"TrendCascade/pkg/queue"
	"TrendCascade/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// CascadeLocker serialises the cascade per symbol.
type CascadeLocker interface{ domrepo.KeyLocker }

// PatternLocker serialises confidence updates per pattern signature.
type PatternLocker interface{ domrepo.KeyLocker }

const (
	initTimeout = 10 * time.Second
	localBuffer = 64
)

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	cd, err := codec.New(cfg.Kafka.Codec)
	if err != nil {
		return nil, fmt.Errorf("kafka codec: %w", err)
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithCodec(cd),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger. Error digests go to Kafka when the collector is on.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Log.Collector.Topic,
			Publisher:      producer,
		})
	}
	return l, nil
}

func ProvideMetrics() domrepo.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

func ProvideDatabase(cfg *config.Config, lgr *logger.Logger) (*gorm.DB, error) {
	db, err := database.Open(
		database.WithDriver(cfg.Database.Driver, cfg.Database.DSN),
		database.WithPool(cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLife),
		database.WithLogger(lgr),
	)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		if err := repository.AutoMigrate(ctx, db); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return db, nil
}

// ProvideRedisCache returns nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCache falls back to an in-process cache, which only holds locks for a single replica.
func ProvideCache(rc *cache.RedisCache) cache.Service {
	if rc != nil {
		return rc
	}
	return cache.NewMemoryCache()
}

func ProvideCascadeLocker(cfg *config.Config, c cache.Service, lgr *logger.Logger) CascadeLocker {
	return lock.New(c,
		lock.WithTTL(cfg.Cascade.LockTTL),
		lock.WithMaxWait(cfg.Cascade.LockTTL),
		lock.WithPrefix("lock:cascade"),
		lock.WithLogger(lgr),
	)
}

func ProvidePatternLocker(cfg *config.Config, c cache.Service, lgr *logger.Logger) PatternLocker {
	return lock.New(c,
		lock.WithTTL(cfg.Confidence.LockTTL),
		lock.WithMaxWait(cfg.Confidence.LockWait),
		lock.WithPrefix("lock:pattern"),
		lock.WithLogger(lgr),
	)
}

// ProvideClickHouseClient returns nil unless tiers are stored in ClickHouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Storage.TierBackend != "clickhouse" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := client.InitSchema(ctx, repository.CHTierSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

func ProvideTierStore(cfg *config.Config, db *gorm.DB, ch *pkgch.Client, lgr *logger.Logger) domrepo.TierStore {
	if cfg.Storage.TierBackend == "clickhouse" && ch != nil {
		return repository.NewCHTierStore(ch, lgr)
	}
	return repository.NewGormTierStore(db)
}

func ProvidePatternStore(cfg *config.Config, db *gorm.DB, c cache.Service, lgr *logger.Logger) domrepo.PatternMemoryStore {
	return repository.NewCachingPatternStore(repository.NewGormPatternStore(db), c, cfg.Redis.CacheTTL, lgr)
}

func ProvideSignalStore(db *gorm.DB) domrepo.SignalStore {
	return repository.NewGormSignalStore(db)
}

func ProvideTierPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.TierPublisher {
	if producer == nil || cfg.Kafka.TierTopic == "" {
		return repository.NopTierPublisher{}
	}
	return repository.NewKafkaTierPublisher(producer, cfg.Kafka.TierTopic)
}

func ProvideNarrator(cfg *config.Config, lgr *logger.Logger) domrepo.Narrator {
	if cfg.Narrative.Provider != "openai" {
		return narrative.NewTemplateNarrator()
	}
	primary := narrative.NewOpenAINarrator(narrative.OpenAIConfig{
		APIKey:  cfg.Narrative.APIKey,
		BaseURL: cfg.Narrative.BaseURL,
		Model:   cfg.Narrative.Model,
		Timeout: cfg.Narrative.Timeout,
	}, nil)
	return narrative.NewFallbackNarrator(primary, lgr)
}

func ProvidePriceSource(cfg *config.Config, tiers domrepo.TierStore, lgr *logger.Logger) domrepo.PriceSource {
	if cfg.Quote.Provider != "http" {
		return repository.NewStorePriceSource(tiers)
	}
	return quote.NewClient(quote.Config{
		BaseURL:    cfg.Quote.BaseURL,
		APIKey:     cfg.Quote.APIKey,
		Timeout:    cfg.Quote.Timeout,
		RatePerSec: cfg.Quote.RatePerSec,
		Burst:      cfg.Quote.Burst,
	}, lgr)
}

func ProvideTierAggregator(
	tiers domrepo.TierStore,
	locker CascadeLocker,
	narrator domrepo.Narrator,
	publisher domrepo.TierPublisher,
	m domrepo.Metrics,
	lgr *logger.Logger,
) *usecase.TierAggregator {
	return usecase.NewTierAggregator(tiers, locker, narrator, publisher, m, lgr)
}

func ProvideCandleIngest(
	cfg *config.Config,
	tiers domrepo.TierStore,
	agg *usecase.TierAggregator,
	m domrepo.Metrics,
	lgr *logger.Logger,
) *usecase.CandleIngest {
	calc := indicators.NewCalculator(cfg.Cascade.SpikeLookback, cfg.Cascade.SpikeThreshold)
	return usecase.NewCandleIngest(tiers, agg, calc, cfg.Cascade.HistoryWindow, m, lgr)
}

func ProvideConfidenceUpdater(patterns domrepo.PatternMemoryStore, locker PatternLocker, m domrepo.Metrics, lgr *logger.Logger) *usecase.ConfidenceUpdater {
	return usecase.NewConfidenceUpdater(patterns, locker, m, lgr)
}

func ProvideSignalValidator(
	cfg *config.Config,
	signals domrepo.SignalStore,
	prices domrepo.PriceSource,
	updater *usecase.ConfidenceUpdater,
	m domrepo.Metrics,
	lgr *logger.Logger,
) (*usecase.SignalValidator, error) {
	profiles := make([]usecase.ValidatorProfile, 0, len(cfg.Validator.Profiles))
	for _, p := range cfg.Validator.Profiles {
		profiles = append(profiles, usecase.ValidatorProfile{Name: p.Name, Dwell: p.Dwell, DeadbandPct: p.DeadbandPct})
	}
	return usecase.NewSignalValidator(signals, prices, updater, usecase.ValidatorConfig{
		BatchSize:    cfg.Validator.BatchSize,
		PriceTimeout: cfg.Validator.PriceTimeout,
		Profiles:     profiles,
	}, m, lgr)
}

func ProvideConsolidator(
	cfg *config.Config,
	signals domrepo.SignalStore,
	patterns domrepo.PatternMemoryStore,
	tiers domrepo.TierStore,
	locker PatternLocker,
	m domrepo.Metrics,
	lgr *logger.Logger,
) *usecase.Consolidator {
	return usecase.NewConsolidator(signals, patterns, tiers, locker, usecase.ConsolidatorConfig{
		RetentionDays: cfg.Consolidator.RetentionDays,
		TopN:          cfg.Consolidator.TopN,
	}, m, lgr)
}

func ProvideFeedbackService(signals domrepo.SignalStore, updater *usecase.ConfidenceUpdater, lgr *logger.Logger) *usecase.FeedbackService {
	return usecase.NewFeedbackService(signals, updater, lgr)
}

func ProvideQueryUseCase(tiers domrepo.TierStore, patterns domrepo.PatternMemoryStore, signals domrepo.SignalStore) *usecase.QueryUseCase {
	return usecase.NewQueryUseCase(tiers, patterns, signals)
}

// ProvideKafkaConsumer returns nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, lgr *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	c, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(lgr),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	c.SetHook(pkgkafka.TraceHook{Logger: lgr})
	return c, nil
}

func ProvideCandlesHandler(cfg *config.Config, ingest *usecase.CandleIngest, m domrepo.Metrics) (*usecase.KafkaCandlesHandler, error) {
	cd, err := codec.New(cfg.Kafka.Codec)
	if err != nil {
		return nil, fmt.Errorf("candles codec: %w", err)
	}
	return usecase.NewKafkaCandlesHandler(cfg.Kafka.CandleTopic, cd, ingest, m), nil
}

// ProvideJobQueue uses Redis lists when the queue is enabled, otherwise an in-process channel.
func ProvideJobQueue(cfg *config.Config, rc *cache.RedisCache, lgr *logger.Logger) (server.JobQueue, error) {
	qc := &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	if !cfg.Queue.Enabled {
		return queue.NewLocalQueue(lgr, qc, localBuffer), nil
	}
	if rc == nil {
		return nil, errors.New("job queue: redis is disabled")
	}
	return queue.NewRedisQueue(lgr, qc, rc.Client(), queue.WithKeyPrefix(cfg.Queue.KeyPrefix)), nil
}

func ProvideValidatorJob(v *usecase.SignalValidator, lgr *logger.Logger) *usecase.ValidatorJob {
	return usecase.NewValidatorJob(v, lgr)
}

func ProvideConsolidatorJob(c *usecase.Consolidator, lgr *logger.Logger) *usecase.ConsolidatorJob {
	return usecase.NewConsolidatorJob(c, lgr)
}

// ProvideScheduler enqueues one validator run per profile and the daily consolidation.
func ProvideScheduler(cfg *config.Config, jobs server.JobQueue, lgr *logger.Logger) *server.Scheduler {
	tasks := make([]server.Task, 0, len(cfg.Validator.Profiles)+1)
	for _, p := range cfg.Validator.Profiles {
		tasks = append(tasks, server.Task{
			Job:      usecase.JobValidatorRun,
			Interval: cfg.Scheduler.ValidateInterval,
			Payload:  usecase.ValidatorJobPayload{Profile: p.Name},
		})
	}
	tasks = append(tasks, server.Task{
		Job:      usecase.JobConsolidatorRun,
		Interval: cfg.Scheduler.ConsolidateInterval,
		Payload:  usecase.ConsolidatorJobPayload{WindowDays: cfg.Consolidator.WindowDays},
	})
	return server.NewScheduler(jobs, lgr, tasks...)
}

func ProvideHandler(
	cfg *config.Config,
	lgr *logger.Logger,
	ingest *usecase.CandleIngest,
	feedback *usecase.FeedbackService,
	validator *usecase.SignalValidator,
	consolidator *usecase.Consolidator,
	query *usecase.QueryUseCase,
	jobs server.JobQueue,
) *api.CascadeEchoHandler {
	opts := []api.Option{api.WithJobQueue(jobs)}
	if cfg.Server.IngestRate > 0 {
		opts = append(opts, api.WithIngestLimit(ratelimit.New(cfg.Server.IngestRate, cfg.Server.IngestBurst)))
	}
	return api.NewCascadeEchoHandler(lgr, ingest, feedback, validator, consolidator, query, opts...)
}

// ProvideApp assembles the server. Clients close in reverse order of construction.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	handler *api.CascadeEchoHandler,
	jobs server.JobQueue,
	validatorJob *usecase.ValidatorJob,
	consolidatorJob *usecase.ConsolidatorJob,
	scheduler *server.Scheduler,
	consumer *pkgkafka.Consumer,
	candles *usecase.KafkaCandlesHandler,
	producer *pkgkafka.Producer,
	db *gorm.DB,
	ch *pkgch.Client,
	c cache.Service,
) *server.App {
	var closers []server.Closer
	if ch != nil {
		closers = append(closers, server.Closer{Name: "clickhouse", Close: ch.Close})
	}
	if closer, ok := c.(interface{ Close() error }); ok {
		closers = append(closers, server.Closer{Name: "cache", Close: closer.Close})
	}
	closers = append(closers, server.Closer{Name: "database", Close: func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}})
	if producer != nil {
		closers = append(closers,
			server.Closer{Name: "log collector", Close: func() error {
				lgr.RemoveCollector()
				return nil
			}},
			server.Closer{Name: "kafka producer", Close: producer.Close},
		)
	}

	opts := []server.Option{
		server.WithJobQueue(jobs, validatorJob, consolidatorJob),
		server.WithScheduler(scheduler),
		server.WithClosers(closers...),
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer, candles))
	}
	return server.New(cfg, lgr, handler, opts...)
}
