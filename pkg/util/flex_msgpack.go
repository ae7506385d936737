package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

func (f FlexFloat) EncodeMsgpack(enc *msgpack.Encoder) error {
	if !f.Set {
		return enc.EncodeNil()
	}
	return enc.EncodeFloat64(f.Value)
}

func (f *FlexFloat) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	*f = FlexFloat{}
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", x)
		}
		*f = Float(n)
		return nil
	default:
		n, ok := toFloat(x)
		if !ok {
			return fmt.Errorf("not a number: %T", v)
		}
		*f = Float(n)
		return nil
	}
}

func (t FlexTime) EncodeMsgpack(enc *msgpack.Encoder) error {
	if t.IsZero() {
		return enc.EncodeNil()
	}
	return enc.EncodeInt(t.UnixMilli())
}

func (t *FlexTime) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	t.Time = time.Time{}
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		t.Time = x.UTC()
		return nil
	case string:
		if x == "" {
			return nil
		}
		parsed, ok := ParseTime(x)
		if !ok {
			return fmt.Errorf("invalid time: %q", x)
		}
		t.Time = parsed
		return nil
	default:
		n, ok := toFloat(x)
		if !ok {
			return fmt.Errorf("invalid time: %T", v)
		}
		t.Time = FromUnixAuto(int64(n))
		return nil
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
