package svc_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gdax-broker/internal/config"
	"gdax-broker/internal/svc"
	"gdax-broker/pkg/exchange"
	"gdax-broker/pkg/exchange/coinbase"
	"gdax-broker/pkg/ledger"
)

func loadConfig(t *testing.T, env, exchangeYAML string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("NO_DOTENV", "1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "exchange.yaml"), []byte(exchangeYAML), 0o600))
	mainPath := filepath.Join(dir, "gdax.yaml")
	require.NoError(t, os.WriteFile(mainPath, []byte("Env: "+env+"\nExchange:\n  File: exchange.yaml\n"), 0o600))
	cfg, err := config.Load(mainPath)
	require.NoError(t, err)
	return cfg
}

const baseExchange = "key: k\npassphrase: p\nsecret: c2VjcmV0\norder_id:\n  dir: ids\n"

// TestEnvironmentAwareEndpoint verifies that test environments are pinned to
// the sandbox while dev and prod follow the exchange file.
func TestEnvironmentAwareEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		sandbox bool
		want    string
	}{
		{"test env forces sandbox", "test", false, exchange.SandboxURL},
		{"test env keeps sandbox", "test", true, exchange.SandboxURL},
		{"dev env respects production", "dev", false, exchange.ProductionURL},
		{"dev env respects sandbox", "dev", true, exchange.SandboxURL},
		{"prod env respects production", "prod", false, exchange.ProductionURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := baseExchange
			if tt.sandbox {
				body += "sandbox: true\n"
			}
			cfg := loadConfig(t, tt.env, body)
			assert.Equal(t, tt.want, cfg.Exchange.Value.Endpoint())
		})
	}
}

func TestNewServiceContextWiresClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/time" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"iso":"2023-02-01T12:00:00Z","epoch":1675252800}`))
	}))
	defer srv.Close()

	cfg := loadConfig(t, "dev", baseExchange+"ledger:\n  kind: file\n  dir: trades\n")
	ctx := context.Background()

	sc, err := svc.NewServiceContext(ctx, *cfg, coinbase.WithBaseURL(srv.URL))
	require.NoError(t, err)
	defer func() { require.NoError(t, sc.Close()) }()

	assert.Nil(t, sc.DBConn)
	assert.IsType(t, &ledger.FileRecorder{}, sc.Ledger)
	assert.DirExists(t, filepath.Join(cfg.BaseDir(), "ids"))
	assert.DirExists(t, filepath.Join(cfg.BaseDir(), "trades"))

	id, err := sc.IDs.NextID(ctx)
	require.NoError(t, err)
	assert.Positive(t, id)

	st, err := sc.Client.GetTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1675252800000), st.Epoch)
}

func TestNewServiceContextRequiresExchange(t *testing.T) {
	_, err := svc.NewServiceContext(context.Background(), config.Config{Env: "test"})
	require.Error(t, err)
}

func TestNewServiceContextPostgresLedgerNeedsDSN(t *testing.T) {
	cfg := loadConfig(t, "test", baseExchange+"ledger:\n  kind: postgres\n")
	_, err := svc.NewServiceContext(context.Background(), *cfg)
	require.Error(t, err)
}
