package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

const backtestConfig = `
ensemble:
  name: solo-org
  capital: 1000
  rebalance_period: 0
  analysts:
    - name: solo
      weights:
        - {instrument: AAA, weight: 1}
feed:
  type: kafka
`

func writeFixtures(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	barsPath := filepath.Join(dir, "bars.csv")
	if err := os.WriteFile(cfgPath, []byte(backtestConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(barsPath, []byte("date,AAA\n2024-01-02,10\n2024-01-03,20\n"), 0o600); err != nil {
		t.Fatalf("write bars: %v", err)
	}
	return cfgPath, barsPath
}

func TestRunBacktestReplaysBars(t *testing.T) {
	cfgPath, barsPath := writeFixtures(t)
	var out bytes.Buffer

	err := runBacktest(context.Background(), &out, nil, runOptions{
		configPath: cfgPath,
		barsPath:   barsPath,
		logLevel:   "error",
	})
	if err != nil {
		t.Fatalf("runBacktest: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"=== epoch 1 2024-01-02 (rebalance=true orders=1) ===",
		"=== final after 2 epochs ===",
		"ensemble solo-org (1 analysts)",
		"analyst solo confidence 1.000000",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if !regexp.MustCompile(`AAA\s+50\n`).MatchString(got) {
		t.Fatalf("expected 50 AAA shares after rebalancing down:\n%s", got)
	}
	if !regexp.MustCompile(`fills\s+2\n`).MatchString(got) {
		t.Fatalf("expected two fills:\n%s", got)
	}
}

func TestRunBacktestMissingBars(t *testing.T) {
	cfgPath, _ := writeFixtures(t)
	err := runBacktest(context.Background(), &bytes.Buffer{}, nil, runOptions{
		configPath: cfgPath,
		barsPath:   filepath.Join(t.TempDir(), "missing.csv"),
		logLevel:   "error",
	})
	if err == nil {
		t.Fatalf("expected error for missing bar file")
	}
}
