package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ExecutionMode != "immediate" {
		t.Errorf("expected immediate default, got %s", cfg.ExecutionMode)
	}
	if cfg.StorageBackend != "memory" {
		t.Errorf("expected memory default, got %s", cfg.StorageBackend)
	}
	if cfg.SnapshotCapacity != 10000 {
		t.Errorf("expected capacity 10000, got %d", cfg.SnapshotCapacity)
	}
	if cfg.SnapshotCacheTTL != 5*time.Second {
		t.Errorf("expected TTL 5s, got %v", cfg.SnapshotCacheTTL)
	}
	if len(cfg.Tickers) != 2 {
		t.Errorf("expected 2 default tickers, got %v", cfg.Tickers)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("EXECUTION_MODE", "NEXT_BAR")
	t.Setenv("SNAPSHOT_CACHE_TTL", "30s")
	t.Setenv("TICKERS", " BTCUSDT , SOLUSDT ,")
	t.Setenv("FEE_RATE", "0.001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ExecutionMode != "next_bar" {
		t.Errorf("mode should be lowercased, got %s", cfg.ExecutionMode)
	}
	if cfg.SnapshotCacheTTL != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.SnapshotCacheTTL)
	}
	if len(cfg.Tickers) != 2 || cfg.Tickers[1] != "SOLUSDT" {
		t.Errorf("tickers not trimmed: %v", cfg.Tickers)
	}
	if cfg.FeeRate != 0.001 {
		t.Errorf("expected fee 0.001, got %f", cfg.FeeRate)
	}
}

func TestLoadPortfolios(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portfolios.yaml")
	content := `portfolios:
  - id: main
    name: Main Portfolio
    initial_cash: 50000
    max_positions: 10
    max_concentration_pct: 0.25
    cash_fraction: 0.10
  - id: aggressive
    name: Aggressive
    initial_cash: 10000
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := LoadPortfolios(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 portfolios, got %d", len(got))
	}
	if got[0].ID != "main" || got[0].InitialCash != 50000 || got[0].CashFraction != 0.10 {
		t.Errorf("unexpected first portfolio: %+v", got[0])
	}
}

func TestLoadPortfoliosValidation(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name    string
		content string
	}{
		{"missing id", "portfolios:\n  - name: x\n    initial_cash: 100\n"},
		{"non-positive cash", "portfolios:\n  - id: x\n    initial_cash: 0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".yaml")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatalf("write fixture: %v", err)
			}
			if _, err := LoadPortfolios(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
