package monitoring

import (
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("probe")
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op that must not panic or call anything
	called = false
	SetLogger(nil)
	Logf("probe")
	if called {
		t.Error("no-op logger should not have fired the old callback")
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
	Logf("probe: %s", "value")
}

func TestPrefixed(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })

	Prefixed("session-1")("frame dropped")
	if !strings.HasPrefix(got, "[session-1] ") {
		t.Errorf("expected tag prefix, got %q", got)
	}
}
