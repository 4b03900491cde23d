package logging_test

import (
	"bytes"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"vsnap/src/logging"
)

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Options{Level: "warn", Format: "text", Output: &buf})
	log.Info("hidden")
	log.Warn("shown", "volume", "db")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") || !strings.Contains(out, "volume=db") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Options{Level: "info", Format: "json", Output: &buf})
	log.Info("snapshot created", "snapshot", "snap-a")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not json: %q: %v", buf.String(), err)
	}
	if rec["@message"] != "snapshot created" || rec["snapshot"] != "snap-a" || rec["@module"] != "vsnap" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Options{Level: "chatty", Output: &buf})
	if !log.IsInfo() || log.IsDebug() {
		t.Fatalf("expected info level")
	}
}
