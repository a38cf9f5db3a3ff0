package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	plain := NewID("")
	if len(plain) != 32 || strings.Contains(plain, "-") {
		t.Fatalf("NewID(\"\") = %q, want 32 hex chars", plain)
	}

	prefixed := NewID("ps")
	if !strings.HasPrefix(prefixed, "ps_") || len(prefixed) != 35 {
		t.Fatalf("NewID(\"ps\") = %q", prefixed)
	}

	if NewID("") == NewID("") {
		t.Fatal("expected distinct identifiers")
	}
}
