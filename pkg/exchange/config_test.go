package exchange_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	exchange "gdax-broker/pkg/exchange"
)

func TestLoadConfigExpandsEnvAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GDAX_KEY", "key-1")
	t.Setenv("GDAX_PASSPHRASE", "pass-1")
	t.Setenv("GDAX_SECRET", "c2VjcmV0")

	configYAML := `
key: ${GDAX_KEY}
passphrase: ${GDAX_PASSPHRASE}
secret: ${GDAX_SECRET}
sandbox: true
timeout: 45s
stp: dc
order_id:
  dir: /tmp/gdax
`
	path := filepath.Join(dir, "exchange.yaml")
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := exchange.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Key != "key-1" || cfg.Passphrase != "pass-1" || cfg.Secret != "c2VjcmV0" {
		t.Fatalf("credentials not expanded: %+v", cfg.Credentials())
	}
	if cfg.Endpoint() != exchange.SandboxURL {
		t.Fatalf("unexpected endpoint: %s", cfg.Endpoint())
	}
	if cfg.Timeout != 45*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.Timeout)
	}
	if cfg.PublicRate != 3 || cfg.PrivateRate != 5 {
		t.Fatalf("unexpected rate defaults: %d/%d", cfg.PublicRate, cfg.PrivateRate)
	}
	if cfg.FillTimeout != 30*time.Second || cfg.PollInterval != 500*time.Millisecond {
		t.Fatalf("unexpected polling defaults: %s/%s", cfg.FillTimeout, cfg.PollInterval)
	}
	if cfg.OrderID.EpochYear != 2021 || cfg.OrderID.Dir != "/tmp/gdax" {
		t.Fatalf("unexpected order id config: %+v", cfg.OrderID)
	}
	if cfg.Ledger.Kind != exchange.LedgerNone {
		t.Fatalf("unexpected ledger kind: %s", cfg.Ledger.Kind)
	}
}

func TestLoadConfigRequiresCredentials(t *testing.T) {
	_, err := exchange.LoadConfigFromReader(strings.NewReader("sandbox: true\n"))
	if err == nil || !strings.Contains(err.Error(), "secret") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	base := "key: k\npassphrase: p\nsecret: s\n"
	cases := map[string]string{
		"duration": base + "fill_timeout: soon\n",
		"negative": base + "poll_interval: -1s\n",
		"stp":      base + "stp: xx\n",
		"ledger":   base + "ledger:\n  kind: file\n",
		"epoch":    base + "order_id:\n  epoch_year: 1990\n",
		"future":   base + "order_id:\n  epoch_year: 9999\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := exchange.LoadConfigFromReader(strings.NewReader(body)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestEndpointPrefersBaseURL(t *testing.T) {
	cfg := &exchange.Config{BaseURL: "http://localhost:8080/", Sandbox: true}
	if got := cfg.Endpoint(); got != "http://localhost:8080" {
		t.Fatalf("unexpected endpoint %s", got)
	}
}

func TestCheckEpochYear(t *testing.T) {
	now := time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)
	for _, year := range []int{2005, 2021, 2026} {
		if err := exchange.CheckEpochYear(year, now); err != nil {
			t.Fatalf("epoch %d rejected: %v", year, err)
		}
	}
	for _, year := range []int{2000, 2004, 2027} {
		if err := exchange.CheckEpochYear(year, now); err == nil {
			t.Fatalf("epoch %d accepted", year)
		}
	}
}
