package codec

import (
	"testing"
	"time"

	"TrendCascade/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type candle struct {
	Symbol    string         `json:"symbol"`
	Close     util.FlexFloat `json:"close"`
	Volume    util.FlexFloat `json:"volume"`
	CloseTime util.FlexTime  `json:"closeTime"`
}

func TestNew(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	c, err = New("msgpack")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", c.Name())

	_, err = New("avro")
	assert.Error(t, err)
}

func TestCodecsAgreeOnFlexFields(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 0, 0, time.UTC)
	in := candle{Symbol: "BTCUSDT", Close: util.Float(101.5), CloseTime: util.FlexTime{Time: ts}}

	for _, name := range []string{"json", "msgpack"} {
		t.Run(name, func(t *testing.T) {
			c, err := New(name)
			require.NoError(t, err)

			data, err := c.Marshal(in)
			require.NoError(t, err)

			var out candle
			require.NoError(t, c.Unmarshal(data, &out))
			assert.Equal(t, "BTCUSDT", out.Symbol)
			assert.Equal(t, util.Float(101.5), out.Close)
			assert.False(t, out.Volume.Set)
			assert.True(t, ts.Equal(out.CloseTime.Time))
		})
	}
}

func TestMsgpackAcceptsStringNumbers(t *testing.T) {
	// A producer that sends prices as strings and times as unix millis.
	raw, err := msgpack.Marshal(map[string]interface{}{
		"symbol":    "ETHUSDT",
		"close":     "2500.25",
		"volume":    int64(12),
		"closeTime": int64(1728555000000),
	})
	require.NoError(t, err)

	var out candle
	require.NoError(t, Msgpack{}.Unmarshal(raw, &out))
	assert.Equal(t, util.Float(2500.25), out.Close)
	assert.Equal(t, util.Float(12), out.Volume)
	assert.Equal(t, int64(1728555000000), out.CloseTime.UnixMilli())
}
