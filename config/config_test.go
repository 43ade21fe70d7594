package config

import (
	"testing"
	"time"

	"thermal-render/imaging"
)

func TestLoad_defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 7 || cfg.Format != "png" || cfg.Scale != 1 || cfg.Sink != "file" {
		t.Fatalf("%+v", cfg)
	}
	if cfg.Metrics == nil || !*cfg.Metrics {
		t.Fatal("metrics default")
	}
	if cfg.Cache().TTL != 30*time.Minute {
		t.Fatal(cfg.Cache().TTL)
	}
	r, err := cfg.Palettes()
	if err != nil || r.Color != nil || r.Gray != nil {
		t.Fatal("default palettes", err)
	}
}

func TestLoad_env(t *testing.T) {
	t.Setenv("APP_WORKERS", "3")
	t.Setenv("APP_FORMAT", "webp")
	t.Setenv("APP_QUALITY", "70")
	t.Setenv("APP_SCALE", "4")
	t.Setenv("APP_OUTPUT_RENAME", "A:A_gray")
	t.Setenv("APP_ALLOWED_ORIGINS", "example.com,*.example.org")
	t.Setenv("APP_GRAY_PALETTE", "0:#ffffff,1:#000000")
	t.Setenv("APP_METRICS", "false")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 3 || len(cfg.AllowedOrigins) != 2 || *cfg.Metrics {
		t.Fatalf("%+v", cfg)
	}
	e, err := cfg.Encoder()
	if err != nil {
		t.Fatal(err)
	}
	if e != (imaging.Encoder{Format: imaging.WebP, Quality: 70, Scale: 4}) {
		t.Fatalf("%+v", e)
	}
	rule, err := cfg.OutputRule()
	if err != nil || rule.From != "A" || rule.To != "A_gray" {
		t.Fatal(rule, err)
	}
	r, err := cfg.Palettes()
	if err != nil || r.Gray == nil {
		t.Fatal(err)
	}
}

func TestValidate_fail(t *testing.T) {
	data := map[string]string{
		"APP_WORKERS":        "0",
		"APP_FORMAT":         "gif",
		"APP_QUALITY":        "0",
		"APP_SCALE":          "0",
		"APP_PALETTE":        "0:#000000",
		"APP_OUTPUT_RENAME":  "nocolon",
		"APP_OUTPUT_SEGMENT": "-2",
		"APP_SINK":           "s3",
		"APP_LOG_LEVEL":      "loud",
	}
	for k, v := range data {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			if _, err := Load(); err == nil {
				t.Fatalf("%s=%s: expected failure", k, v)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	l, err := Config{LogLevel: "debug"}.NewLogger()
	if err != nil {
		t.Fatal(err)
	}
	if !l.Core().Enabled(-1) {
		t.Fatal("debug not enabled")
	}
}
