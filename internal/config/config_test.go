package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Port)
	}
	if cfg.MinSlides != 3 || cfg.MaxSlides != 30 || cfg.DefaultSlides != 10 {
		t.Errorf("slide bounds = %d/%d/%d", cfg.MinSlides, cfg.MaxSlides, cfg.DefaultSlides)
	}
	if cfg.RateLimitPerMinute != 60 || cfg.RateLimitBurst != 100 {
		t.Errorf("rate limit = %d/%d, want 60/100", cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Port)
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Errorf("model = %q", cfg.OpenAIModel)
	}
}
