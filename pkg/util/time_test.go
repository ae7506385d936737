package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnixSecondsAndMillis(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)

	got, ok := ParseTime(strconv.FormatInt(want.Unix(), 10))
	if !ok || !got.Equal(want) {
		t.Fatalf("seconds: got %v ok=%v", got, ok)
	}

	got, ok = ParseTime(strconv.FormatInt(want.UnixMilli(), 10))
	if !ok || !got.Equal(want) {
		t.Fatalf("millis: got %v ok=%v", got, ok)
	}
}
