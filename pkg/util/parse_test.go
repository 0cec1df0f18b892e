package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2025-06-01T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2025, 6, 1, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseIntDefault(t *testing.T) {
	if got := ParseIntDefault("", 24); got != 24 {
		t.Fatalf("expected default, got %d", got)
	}
	if got := ParseIntDefault("48", 24); got != 48 {
		t.Fatalf("expected 48, got %d", got)
	}
	if got := ParseIntDefault("nope", 24); got != 24 {
		t.Fatalf("expected default on invalid, got %d", got)
	}
}

func TestClampInt(t *testing.T) {
	if got := ClampInt(0, 1, 168); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := ClampInt(999, 1, 168); got != 168 {
		t.Fatalf("expected 168, got %d", got)
	}
	if got := ClampInt(48, 1, 168); got != 48 {
		t.Fatalf("expected 48, got %d", got)
	}
}

func TestSplitCSV(t *testing.T) {
	got := SplitCSV("coingecko, binance ,,alternative")
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %v", got)
	}
	if got[1] != "binance" {
		t.Fatalf("expected trimmed item, got %q", got[1])
	}
	if SplitCSV("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}
