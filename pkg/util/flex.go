package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FlexFloat decodes a JSON number or a numeric string. Null and "" leave it unset.
type FlexFloat struct {
	Value float64
	Set   bool
}

func Float(v float64) FlexFloat { return FlexFloat{Value: v, Set: true} }

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = FlexFloat{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = FlexFloat{}
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		*f = FlexFloat{Value: v, Set: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = FlexFloat{Value: v, Set: true}
	return nil
}

func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// Valid reports whether the value is set and finite.
func (f FlexFloat) Valid() bool {
	return f.Set && !math.IsNaN(f.Value) && !math.IsInf(f.Value, 0)
}

// Or returns the value when valid, def otherwise.
func (f FlexFloat) Or(def float64) float64 {
	if f.Valid() {
		return f.Value
	}
	return def
}

// FlexTime decodes RFC3339 strings, unix seconds or unix milliseconds.
type FlexTime struct {
	time.Time
}

func (t *FlexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, ok := ParseTime(raw)
	if !ok {
		return fmt.Errorf("invalid time: %q", raw)
	}
	t.Time = parsed
	return nil
}

func (t FlexTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
