package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitWriter(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, false, false)
	L().Info().Msg("json info")
	L().Debug().Msg("hidden")
	if !bytes.Contains(buf.Bytes(), []byte(`"message":"json info"`)) {
		t.Errorf("expected json line, got: %s", buf.String())
	}
	if bytes.Contains(buf.Bytes(), []byte("hidden")) {
		t.Errorf("debug line written at info level: %s", buf.String())
	}
	if IsPrettyMode() {
		t.Error("pretty mode on for JSON output")
	}

	buf.Reset()
	InitWriter(&buf, true, true)
	L().Debug().Msg("human debug")
	if !bytes.Contains(buf.Bytes(), []byte("human debug")) {
		t.Errorf("expected debug line, got: %s", buf.String())
	}
	if !IsPrettyMode() {
		t.Error("pretty mode off for human output")
	}

	Init(false, false)
}

func TestWithPhase(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	log := WithPhase("combine")
	log.Info().Msg("test message")

	if !bytes.Contains(buf.Bytes(), []byte(`"phase":"combine"`)) {
		t.Errorf("expected phase field in output, got: %s", buf.String())
	}
	Init(false, false)
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).With().Str("custom", "field").Logger())

	L().Info().Msg("test")

	if !bytes.Contains(buf.Bytes(), []byte(`"custom":"field"`)) {
		t.Errorf("expected custom field in output, got: %s", buf.String())
	}
	Init(false, false)
}
