package monitoring

import "testing"

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = format
	})
	Logf("sampling: block %q budget exhausted")
	if got != "sampling: block %q budget exhausted" {
		t.Errorf("custom logger not called, got %q", got)
	}

	// nil installs a no-op, not a nil function
	got = ""
	SetLogger(nil)
	Logf("should be dropped")
	if got != "" {
		t.Errorf("no-op logger leaked output %q", got)
	}

	SetLogger(func(format string, v ...interface{}) {
		got = format
	})
	Logf("back")
	if got != "back" {
		t.Error("logger not restorable after nil")
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
}
