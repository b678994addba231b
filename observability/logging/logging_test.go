package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupRenamesKeysAndFiltersLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := Setup("indexerd", "test", WithWriter(buf), WithLevel("warn"))
	logger.Info("dropped")
	logger.Warn("kept", slog.Uint64("block", 7))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above the level, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["message"] != "kept" || entry["severity"] != "WARN" || entry["service"] != "indexerd" || entry["env"] != "test" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatalf("expected timestamp key")
	}
}

func TestMaskURL(t *testing.T) {
	cases := map[string]string{
		"https://mainnet.infura.io/v3/secretkey": "https://mainnet.infura.io/" + RedactedValue,
		"http://localhost:8545":                  "http://localhost:8545",
		"":                                       "",
		"not a url":                              RedactedValue,
	}
	for in, want := range cases {
		if got := MaskURL(in); got != want {
			t.Fatalf("MaskURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskField(t *testing.T) {
	if attr := MaskField("rpc", "https://x"); attr.Value.String() != RedactedValue {
		t.Fatalf("expected redaction, got %s", attr.Value)
	}
	if attr := MaskField("logIndex", "3"); attr.Value.String() != "3" {
		t.Fatalf("expected allowlisted key to pass through")
	}
}

func TestDomainKeysAreNotRedacted(t *testing.T) {
	for _, key := range []string{"line", "Position", " token "} {
		if !IsAllowlisted(key) {
			t.Fatalf("expected %q to be public", key)
		}
	}
	if MaskValue("") != "" || MaskValue("secret") != RedactedValue {
		t.Fatalf("unexpected MaskValue behaviour")
	}
}
