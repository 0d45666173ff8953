package fimlet

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	defaults "github.com/Paranoid-AF/fimlet/default"
)

func TestResponseCompletionsEmptyNotNull(t *testing.T) {
	resp := Response{Completions: []Completion{}}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"completions":[]`) {
		t.Errorf("expected completions:[], got %s", data)
	}
}

func TestRequestJSONKeys(t *testing.T) {
	raw := `{"request_id":42,"session_id":"s","text":"ab","line":0,"character":1,"position_encoding":"utf-16","language":"go"}`
	var req Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatal(err)
	}
	if req.RequestID != 42 || req.SessionID != "s" || req.Character != 1 ||
		req.PositionEncoding != "utf-16" || req.Language != "go" {
		t.Errorf("decoded = %+v", req)
	}
}

func TestResponseErrorOmittedWhenNil(t *testing.T) {
	resp := Response{Completions: []Completion{}}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"error"`) {
		t.Errorf("expected no error key, got %s", data)
	}
}

func TestResponseErrorIncluded(t *testing.T) {
	resp := Response{
		Completions: []Completion{},
		Error:       &Error{Code: "unauthorized", Message: "Invalid API key. Please check your configuration."},
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"code":"unauthorized"`) {
		t.Errorf("expected unauthorized code, got %s", data)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Completion.DebounceMs != 300 {
		t.Errorf("debounce_ms = %d, want 300", cfg.Completion.DebounceMs)
	}
	if cfg.Completion.MaxLinesAbove != 10 || cfg.Completion.MaxLinesBelow != 2 {
		t.Errorf("window = %d/%d, want 10/2", cfg.Completion.MaxLinesAbove, cfg.Completion.MaxLinesBelow)
	}
	if cfg.Completion.Multiline {
		t.Error("multiline should default to false")
	}
	if cfg.Generation.MaxTokens != 128 || cfg.Generation.Temperature != 0.3 {
		t.Errorf("generation = %+v", cfg.Generation)
	}
	if cfg.Generation.Seed == nil || *cfg.Generation.Seed != 1234 {
		t.Errorf("seed = %v", cfg.Generation.Seed)
	}
	if !ShellRedactionEnabled(cfg) {
		t.Error("shell redaction should default to true")
	}
	if cfg.Debounce() != 300*time.Millisecond {
		t.Errorf("Debounce() = %v", cfg.Debounce())
	}
}

func TestDefaultPromptHasPlaceholders(t *testing.T) {
	if !strings.Contains(defaults.DefaultPrompt, "{textAboveCursor}") ||
		!strings.Contains(defaults.DefaultPrompt, "{textBelowCursor}") {
		t.Errorf("default prompt missing placeholders: %q", defaults.DefaultPrompt)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("FIMLET_CONFIG_DIR", t.TempDir())
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Generation.Model != DefaultConfig().Generation.Model {
		t.Errorf("model = %q", cfg.Generation.Model)
	}
}

func TestLoadConfigFillsMissingFields(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FIMLET_CONFIG_DIR", dir)
	data := `{"completion":{"multiline":true,"max_lines_above":40},"redaction":{"shell":false}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Completion.Multiline || cfg.Completion.MaxLinesAbove != 40 {
		t.Errorf("explicit values lost: %+v", cfg.Completion)
	}
	if cfg.Completion.MaxLinesBelow != 2 || cfg.Completion.DebounceMs != 300 {
		t.Errorf("defaults not applied: %+v", cfg.Completion)
	}
	if cfg.Generation.BaseURL == "" || cfg.Generation.APIType != "completions" {
		t.Errorf("generation defaults not applied: %+v", cfg.Generation)
	}
	if ShellRedactionEnabled(cfg) {
		t.Error("explicit shell:false should be kept")
	}
}

func TestParseConfigKeepsExplicitZeros(t *testing.T) {
	data := `{"completion":{"debounce_ms":0,"max_lines_above":0,"max_lines_below":0},` +
		`"generation":{"temperature":0},"session":{"idle_ttl_minutes":0}}`
	cfg, err := ParseConfig([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Completion.DebounceMs != 0 || cfg.Debounce() != 0 {
		t.Errorf("debounce_ms = %d, want 0", cfg.Completion.DebounceMs)
	}
	if cfg.Completion.MaxLinesAbove != 0 || cfg.Completion.MaxLinesBelow != 0 {
		t.Errorf("line limits = %d/%d, want 0/0", cfg.Completion.MaxLinesAbove, cfg.Completion.MaxLinesBelow)
	}
	if cfg.Generation.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", cfg.Generation.Temperature)
	}
	if cfg.SessionTTL() != 0 {
		t.Errorf("session ttl = %v, want 0", cfg.SessionTTL())
	}
	// Keys absent from the file still come from the defaults.
	if cfg.Generation.MaxTokens != 128 || cfg.Generation.Seed == nil || *cfg.Generation.Seed != 1234 {
		t.Errorf("generation defaults not applied: %+v", cfg.Generation)
	}
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FIMLET_CONFIG_DIR", dir)
	os.WriteFile(filepath.Join(dir, "config.json"), []byte("{"), 0644)
	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestConfigDirResolution(t *testing.T) {
	t.Setenv("FIMLET_CONFIG_DIR", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := ConfigDir(); got != "/xdg/fimlet" {
		t.Errorf("ConfigDir() = %q", got)
	}
	t.Setenv("FIMLET_CONFIG_DIR", "/explicit")
	if got := ConfigDir(); got != "/explicit" {
		t.Errorf("ConfigDir() = %q", got)
	}
}

func TestResolveGenerationEnvOverrides(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("FIMLET_GENERATION_API_BASE_URL", "http://gpu:9000/v1")
	t.Setenv("FIMLET_GENERATION_API_KEY", "sk-env")
	t.Setenv("FIMLET_GENERATION_MODEL", "env-model")

	if got := ResolveGenerationBaseURL(cfg); got != "http://gpu:9000/v1" {
		t.Errorf("base url = %q", got)
	}
	if got := ResolveGenerationAPIKey(cfg); got != "sk-env" {
		t.Errorf("api key = %q", got)
	}
	if got := ResolveGenerationModel(cfg); got != "env-model" {
		t.Errorf("model = %q", got)
	}
}

func TestResolvePromptTemplate(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FIMLET_CONFIG_DIR", dir)
	cfg := DefaultConfig()

	if got := ResolvePromptTemplate(cfg); got != defaults.DefaultPrompt {
		t.Errorf("expected embedded default, got %q", got)
	}

	cfg.Completion.PromptTemplate = "<PRE>{textAboveCursor}<SUF>{textBelowCursor}<MID>"
	if got := ResolvePromptTemplate(cfg); got != cfg.Completion.PromptTemplate {
		t.Errorf("expected config template, got %q", got)
	}

	os.WriteFile(filepath.Join(dir, "prompt.txt"), []byte("file {textAboveCursor}{textBelowCursor}\n"), 0644)
	if got := ResolvePromptTemplate(cfg); got != "file {textAboveCursor}{textBelowCursor}" {
		t.Errorf("expected prompt.txt template, got %q", got)
	}
}

func TestValidateConfig(t *testing.T) {
	t.Setenv("FIMLET_CONFIG_DIR", t.TempDir())

	if w := ValidateConfig(DefaultConfig()); len(w) != 0 {
		t.Errorf("default config should be clean, got %v", w)
	}

	cfg := DefaultConfig()
	cfg.Completion.PromptTemplate = "no placeholders"
	cfg.Generation.APIType = "responses"
	cfg.Completion.MaxLinesAbove = -1
	w := ValidateConfig(cfg)
	if len(w) != 4 {
		t.Errorf("expected 4 warnings, got %d: %v", len(w), w)
	}

	cfg = DefaultConfig()
	cfg.Session.IdleTTLMinutes = -5
	w = ValidateConfig(cfg)
	if len(w) != 1 || !strings.Contains(w[0], "idle_ttl_minutes") {
		t.Errorf("expected idle_ttl_minutes warning, got %v", w)
	}
	if cfg.SessionTTL() != 0 {
		t.Errorf("negative ttl = %v, want 0 (no expiry)", cfg.SessionTTL())
	}

	if w := ValidateConfig(nil); len(w) != 0 {
		t.Errorf("nil config should produce no warnings, got %v", w)
	}
}
