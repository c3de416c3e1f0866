package icapclient

import (
	"strings"
	"testing"
	"time"
)

func TestRequestTagIsWellFormedAndUnique(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	a := requestTag(now, RESPMOD, "localhost")
	b := requestTag(now, RESPMOD, "localhost")

	if a == b {
		t.Fatalf("requestTag() produced the same tag twice for identical inputs: %q", a)
	}

	parts := strings.SplitN(a, "-", 2)
	if len(parts) != 2 {
		t.Fatalf("requestTag() = %q, want a hash-uuid pair separated by '-'", a)
	}
	if len(parts[0]) != 16 {
		t.Errorf("hash prefix length = %d, want 16 hex chars", len(parts[0]))
	}
	if len(parts[1]) != 8 {
		t.Errorf("uuid suffix length = %d, want 8", len(parts[1]))
	}
}

func TestRequestTagVariesWithMode(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	reqTag := requestTag(now, REQMOD, "localhost")
	respTag := requestTag(now, RESPMOD, "localhost")

	if strings.SplitN(reqTag, "-", 2)[0] == strings.SplitN(respTag, "-", 2)[0] {
		t.Error("expected different hash prefixes for different modes at the same instant")
	}
}
