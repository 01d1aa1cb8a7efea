package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogger_New(t *testing.T) {
	tests := []struct {
		name    string
		opts    Logger
		debug   bool
		json    bool
		noColor bool
	}{
		{"json info", Logger{Level: "info", Format: "json"}, false, true, true},
		{"json debug", Logger{Level: "debug", Format: "json"}, true, true, true},
		{"console without color", Logger{Level: "warn", Format: "console", NoColor: true}, false, false, true},
		{"invalid level falls back to info", Logger{Level: "loud", Format: "json"}, false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := tt.opts.New(&buf)
			l.Debug().Msg("debug line")
			l.Warn().Str("k", "v").Msg("warn line")

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.debug {
				t.Errorf("debug line present = %v, want %v:\n%s", got, tt.debug, out)
			}
			if !strings.Contains(out, "warn line") {
				t.Errorf("missing warn line:\n%s", out)
			}
			if got := strings.HasPrefix(out, "{"); got != tt.json {
				t.Errorf("json output = %v, want %v:\n%s", got, tt.json, out)
			}
			if tt.noColor && strings.Contains(out, "\x1b[") {
				t.Errorf("unexpected color codes:\n%s", out)
			}
		})
	}
}
