package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pipeline.DeliveryMode != "strict" {
		t.Fatalf("expected strict delivery by default, got %q", cfg.Pipeline.DeliveryMode)
	}
	if cfg.TTS.Mode != "mock" {
		t.Fatalf("expected mock tts by default, got %q", cfg.TTS.Mode)
	}
	if cfg.Pipeline.MinWords != 3 {
		t.Fatalf("expected min_words 3, got %d", cfg.Pipeline.MinWords)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOXA_PIPELINE_DELIVERY_MODE", "best_effort")
	t.Setenv("VOXA_PIPELINE_MAX_UTTERANCE_CHARS", "120")
	t.Setenv("VOXA_PIPELINE_DRAIN_TIMEOUT_MS", "5000")
	t.Setenv("VOXA_TTS_MODE", "exec")
	t.Setenv("VOXA_TTS_COMMAND", "python3 xtts_worker.py")
	t.Setenv("VOXA_TTS_VOICE", "clone-42")
	t.Setenv("VOXA_LLM_MODE", "openai")
	t.Setenv("VOXA_LLM_API_KEY", "sk-test")
	t.Setenv("VOXA_LLM_ENDPOINT", "https://openrouter.ai/api/v1")
	t.Setenv("VOXA_STORE_PATH", "./tmp.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Pipeline.DeliveryMode != "best_effort" {
		t.Fatalf("expected delivery mode override, got %q", cfg.Pipeline.DeliveryMode)
	}
	if cfg.Pipeline.MaxUtteranceChars != 120 {
		t.Fatalf("expected max utterance chars 120, got %d", cfg.Pipeline.MaxUtteranceChars)
	}
	if cfg.Pipeline.DrainTimeoutMS != 5000 {
		t.Fatalf("expected drain timeout 5000, got %d", cfg.Pipeline.DrainTimeoutMS)
	}
	if cfg.TTS.Mode != "exec" || cfg.TTS.Command != "python3 xtts_worker.py" {
		t.Fatalf("expected tts exec override, got %q %q", cfg.TTS.Mode, cfg.TTS.Command)
	}
	if cfg.TTS.Voice != "clone-42" {
		t.Fatalf("expected voice override, got %q", cfg.TTS.Voice)
	}
	if cfg.LLM.Mode != "openai" || cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("expected llm override, got %q", cfg.LLM.Mode)
	}
	if cfg.Store.Path != "./tmp.db" {
		t.Fatalf("expected store path override, got %q", cfg.Store.Path)
	}
}

func TestValidateRejectsBadModes(t *testing.T) {
	t.Setenv("VOXA_PIPELINE_DELIVERY_MODE", "eventual")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid delivery mode")
	}
}

func TestValidateExecNeedsCommand(t *testing.T) {
	t.Setenv("VOXA_TTS_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when exec mode has no command")
	}
}
