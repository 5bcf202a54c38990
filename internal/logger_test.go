package internal

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogLevel(t *testing.T) {
	originalLevel := logLevel
	defer SetLogLevel(originalLevel)

	SetLogLevel(LogLevelDebug)
	if logLevel != LogLevelDebug {
		t.Errorf("SetLogLevel() logLevel = %v, want LogLevelDebug", logLevel)
	}

	SetLogLevel(LogLevelError)
	if logLevel != LogLevelError {
		t.Errorf("SetLogLevel() logLevel = %v, want LogLevelError", logLevel)
	}
}

func TestSetVerbose(t *testing.T) {
	originalLevel := logLevel
	defer SetLogLevel(originalLevel)

	SetVerbose(true)
	if logLevel != LogLevelDebug {
		t.Errorf("SetVerbose(true) logLevel = %v, want LogLevelDebug", logLevel)
	}

	SetVerbose(false)
	if logLevel != LogLevelInfo {
		t.Errorf("SetVerbose(false) logLevel = %v, want LogLevelInfo", logLevel)
	}
}

func TestLogFunctions_Filtering(t *testing.T) {
	originalLevel := logLevel
	defer SetLogLevel(originalLevel)

	var buf bytes.Buffer
	prev := SetLogOutput(&buf)
	defer SetLogOutput(prev)

	SetLogLevel(LogLevelWarn)
	LogError("test error message")
	LogWarn("test warning message")
	LogInfo("test info message")
	LogDebug("test debug message")

	out := buf.String()
	for _, want := range []string{"[ERROR] test error message", "[WARN] test warning message"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %q", want, out)
		}
	}
	for _, unwanted := range []string{"info message", "debug message"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("log output should not contain %q at warn level: %q", unwanted, out)
		}
	}
}

func TestLogLevels(t *testing.T) {
	if LogLevelError >= LogLevelWarn {
		t.Error("LogLevelError should be less than LogLevelWarn")
	}
	if LogLevelWarn >= LogLevelInfo {
		t.Error("LogLevelWarn should be less than LogLevelInfo")
	}
	if LogLevelInfo >= LogLevelDebug {
		t.Error("LogLevelInfo should be less than LogLevelDebug")
	}
}
