package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{" WARN ", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"info", logrus.InfoLevel},
		{"verbose", logrus.InfoLevel},
		{"", logrus.InfoLevel},
	}
	for _, tt := range tests {
		SetLevel(tt.in)
		if got := Logger.GetLevel(); got != tt.want {
			t.Errorf("SetLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConfigure_Formats(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer func() {
		Configure("info", "json")
		SetOutput(&bytes.Buffer{})
	}()

	Configure("info", "text")
	WithField("group_id", "g1").Info("resolved")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("text format produced JSON: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "group_id=g1") {
		t.Errorf("text output missing field: %s", buf.String())
	}

	buf.Reset()
	Configure("debug", "json")
	Debug("scored")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json format output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "scored" || entry["level"] != "debug" {
		t.Errorf("unexpected entry: %v", entry)
	}
}
