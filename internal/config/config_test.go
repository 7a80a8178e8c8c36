package config

import "testing"

func TestLoadIncludesPipelineDefaults(t *testing.T) {
	t.Setenv("PIPELINE_CONCURRENCY", "")
	t.Setenv("DOCUMENT_TIMEOUT_SECONDS", "")
	t.Setenv("CLASSIFY_MIN_CONFIDENCE", "")
	t.Setenv("NATS_SUBJECT", "")

	cfg := Load()
	if cfg.PipelineConcurrency != 4 {
		t.Fatalf("expected default concurrency 4, got %d", cfg.PipelineConcurrency)
	}
	if cfg.DocumentTimeoutSeconds != 30 {
		t.Fatalf("expected default document timeout 30, got %d", cfg.DocumentTimeoutSeconds)
	}
	if cfg.ClassifyMinConfidence != 0.55 {
		t.Fatalf("expected default min confidence 0.55, got %v", cfg.ClassifyMinConfidence)
	}
	if cfg.NATSSubject != "batches.submitted" {
		t.Fatalf("expected default subject batches.submitted, got %q", cfg.NATSSubject)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("PIPELINE_CONCURRENCY", "8")
	t.Setenv("CLASSIFY_MIN_CONFIDENCE", "0.70")
	t.Setenv("WEIGHT_AUDITORIA", "0.50")
	t.Setenv("WEIGHT_CONTABILIDADE", "0.20")

	cfg := Load()
	if cfg.PipelineConcurrency != 8 {
		t.Fatalf("expected concurrency 8, got %d", cfg.PipelineConcurrency)
	}
	if cfg.ClassifyMinConfidence != 0.70 {
		t.Fatalf("expected min confidence 0.70, got %v", cfg.ClassifyMinConfidence)
	}
	weights := cfg.ModuleWeights()
	if weights["auditoria"] != 0.50 || weights["contabilidade"] != 0.20 {
		t.Fatalf("expected weight overrides, got %+v", weights)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("PIPELINE_CONCURRENCY", "many")
	t.Setenv("CLASSIFY_MIN_CONFIDENCE", "high")

	cfg := Load()
	if cfg.PipelineConcurrency != 4 {
		t.Fatalf("expected fallback concurrency 4, got %d", cfg.PipelineConcurrency)
	}
	if cfg.ClassifyMinConfidence != 0.55 {
		t.Fatalf("expected fallback min confidence 0.55, got %v", cfg.ClassifyMinConfidence)
	}
}
