// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestSeverityString(t *testing.T) {
	cases := map[Severity]string{
		SeverityDebug:   "debug",
		SeverityInfo:    "info",
		SeverityNotice:  "notice",
		SeverityWarning: "warning",
		SeverityErr:     "err",
		SeverityCrit:    "crit",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("Severity(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestWithComponentAndError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf)
	logger.SetDebug(true)

	l := logger.WithComponent("translator").WithError(errors.New("boom"))
	l.Debug("dropped packet")

	out := buf.String()
	if !strings.Contains(out, "component=translator") {
		t.Errorf("expected component field in output, got %q", out)
	}
	if !strings.Contains(out, "error=boom") {
		t.Errorf("expected error field in output, got %q", out)
	}
}

func TestLogDispatch(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf)
	logger.Log(SeverityNotice, "exiting on signal", "sig", 15)

	out := buf.String()
	if !strings.Contains(out, "severity=notice") {
		t.Errorf("expected severity=notice marker, got %q", out)
	}
}
