package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"TrendCascade/pkg/codec"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffWithJitterStaysInRange(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, max)
	}
	first := backoffWithJitter(min, max, 1)
	assert.GreaterOrEqual(t, first, min/2)
	assert.LessOrEqual(t, first, min)
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad payload")
	err := Permanent(base)
	assert.True(t, isPermanent(err))
	assert.True(t, errors.Is(err, base))
	assert.False(t, isPermanent(base))
	assert.NoError(t, Permanent(nil))
}

func TestEncodeValue(t *testing.T) {
	raw, err := encodeValue(codec.JSON{}, []byte("as-is"))
	require.NoError(t, err)
	assert.Equal(t, "as-is", string(raw))

	raw, err = encodeValue(codec.JSON{}, map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))

	_, err = encodeValue(codec.JSON{}, func() {})
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Gzip, parseCompression("unknown"))
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
	_, err = NewConsumer()
	assert.Error(t, err)
}

func TestHookChainOrderAndPanics(t *testing.T) {
	var order []string
	mk := func(name string) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, _ kafka.Message) (context.Context, error) {
				order = append(order, "before-"+name)
				return ctx, nil
			},
			After: func(context.Context, kafka.Message, error) {
				order = append(order, "after-"+name)
			},
		}
	}
	panicky := HookFuncs{After: func(context.Context, kafka.Message, error) { panic("boom") }}

	chain := NewHookChain(mk("a"), nil, panicky, mk("b"))
	ctx, err := chain.BeforeHandle(context.Background(), kafka.Message{})
	require.NoError(t, err)
	chain.AfterHandle(ctx, kafka.Message{}, nil)

	assert.Equal(t, []string{"before-a", "before-b", "after-b", "after-a"}, order)

	failing := NewHookChain(HookFuncs{Before: func(context.Context, kafka.Message) (context.Context, error) {
		panic("bad hook")
	}})
	_, err = failing.BeforeHandle(context.Background(), kafka.Message{})
	assert.ErrorContains(t, err, "hook panic")
}

func TestTraceHook(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, err := TraceHook{}.BeforeHandle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceID(ctx))
	assert.Empty(t, TraceID(context.Background()))
}

type sequenceHandler struct {
	mu   sync.Mutex
	seen map[int][]int
	n    int
}

func (h *sequenceHandler) Topic() string { return "candles" }

func (h *sequenceHandler) Handle(_ context.Context, data []byte) error {
	var partition, offset int
	if _, err := fmt.Sscanf(string(data), "%d:%d", &partition, &offset); err != nil {
		return Permanent(err)
	}
	// early offsets take longer so a shared pool would let later ones overtake them
	time.Sleep(time.Duration(10-offset) * time.Millisecond)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[partition] = append(h.seen[partition], offset)
	h.n++
	return nil
}

func (h *sequenceHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n
}

func TestWorkerForIsStablePerPartition(t *testing.T) {
	for p := 0; p < 16; p++ {
		w := workerFor("candles", p, 4)
		assert.GreaterOrEqual(t, w, 0)
		assert.Less(t, w, 4)
		assert.Equal(t, w, workerFor("candles", p, 4))
	}
	assert.Equal(t, 0, workerFor("candles", 7, 1))
	assert.Equal(t, 0, workerFor("candles", 7, 0))
}

func TestConsumerKeepsPartitionOrderAcrossWorkers(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerWorkers(4))
	require.NoError(t, err)
	h := &sequenceHandler{seen: make(map[int][]int)}
	c.RegisterHandler(h)
	for _, q := range c.queues {
		c.wg.Add(1)
		go c.worker(q)
	}

	const partitions, perPartition = 4, 10
	for off := 0; off < perPartition; off++ {
		for p := 0; p < partitions; p++ {
			require.True(t, c.dispatch(kafka.Message{
				Topic:     "candles",
				Partition: p,
				Offset:    int64(off),
				Value:     []byte(fmt.Sprintf("%d:%d", p, off)),
			}))
		}
	}

	require.Eventually(t, func() bool { return h.count() == partitions*perPartition }, 5*time.Second, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	for p := 0; p < partitions; p++ {
		assert.Equal(t, want, h.seen[p], "partition %d", p)
	}
}
