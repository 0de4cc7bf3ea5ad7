package telemetry

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{level: "debug", wantDebug: true, wantInfo: true},
		{level: "INFO", wantInfo: true},
		{level: "warn"},
		{level: "bogus", wantInfo: true},
		{level: "", wantInfo: true},
	}

	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, tc.level, "api")

			logger.Debug().Msg("dbg")
			logger.Info().Msg("inf")

			out := buf.String()
			if got := strings.Contains(out, `"msg":"dbg"`); got != tc.wantDebug {
				t.Fatalf("debug emitted = %v, want %v: %s", got, tc.wantDebug, out)
			}
			if got := strings.Contains(out, `"msg":"inf"`); got != tc.wantInfo {
				t.Fatalf("info emitted = %v, want %v: %s", got, tc.wantInfo, out)
			}
			if tc.wantInfo && !strings.Contains(out, `"service":"api"`) {
				t.Fatalf("service field missing: %s", out)
			}
		})
	}
}
