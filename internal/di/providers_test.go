package di

import (
	"context"
	"testing"

	"TrendCascade/internal/repository"
	"TrendCascade/pkg/cache"
	"TrendCascade/pkg/config"
	"TrendCascade/pkg/logger"
	"TrendCascade/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

const minimalConfig = `
database:
  driver: sqlite
  dsn: "file::memory:?cache=shared"
  max_open_conns: 1
  auto_migrate: true
log:
  level: error
`

func TestInitializeAppWithLocalDefaults(t *testing.T) {
	cfg := testConfig(t, minimalConfig)

	app, err := InitializeApp(cfg)
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.NoError(t, app.Shutdown(context.Background()))
}

func TestProvideCacheFallsBackToMemory(t *testing.T) {
	c := ProvideCache(nil)
	_, ok := c.(*cache.MemoryCache)
	assert.True(t, ok)
}

func TestProvideJobQueue(t *testing.T) {
	cfg := testConfig(t, minimalConfig)
	q, err := ProvideJobQueue(cfg, nil, logger.NewNop())
	require.NoError(t, err)
	_, ok := q.(*queue.LocalQueue)
	assert.True(t, ok)

	cfg.Queue.Enabled = true
	_, err = ProvideJobQueue(cfg, nil, logger.NewNop())
	assert.Error(t, err)
}

func TestProvideTierPublisherWithoutKafka(t *testing.T) {
	cfg := testConfig(t, minimalConfig)
	_, ok := ProvideTierPublisher(cfg, nil).(repository.NopTierPublisher)
	assert.True(t, ok)
}

func TestProvideSchedulerSkipsDisabledIntervals(t *testing.T) {
	cfg := testConfig(t, minimalConfig)
	cfg.Scheduler.ValidateInterval = -1
	cfg.Scheduler.ConsolidateInterval = -1
	s := ProvideScheduler(cfg, queue.NewLocalQueue(logger.NewNop(), &queue.QueueConfig{}, 1), logger.NewNop())
	s.Start(context.Background())
	s.Stop()
}
