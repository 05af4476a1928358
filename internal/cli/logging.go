package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"gdax-broker/internal/config"
	"gdax-broker/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
// Credentials are never printed.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Postgres: %s", presence(strings.TrimSpace(cfg.Postgres.DSN) != "")),
		fmt.Sprintf("MySQL: %s", presence(strings.TrimSpace(cfg.MySQL.DSN) != "")),
		sectionLine("Exchange config", cfg.Exchange),
	}
	if ex := cfg.Exchange.Value; ex != nil {
		lines = append(lines,
			fmt.Sprintf("Endpoint: %s (sandbox=%t)", ex.Endpoint(), ex.Sandbox),
			fmt.Sprintf("Rate limits (public/private): %d/s / %d/s", ex.PublicRate, ex.PrivateRate),
			fmt.Sprintf("Fill timeout: %s, poll every %s", ex.FillTimeout, ex.PollInterval),
			fmt.Sprintf("Order id region: %s (epoch %d)", ex.OrderID.Dir, ex.OrderID.EpochYear),
			fmt.Sprintf("Trade ledger: %s", ledgerLine(ex.Ledger.Kind, ex.Ledger.Dir)),
		)
	}
	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func ledgerLine(kind, dir string) string {
	if dir == "" {
		return kind
	}
	return kind + " " + dir
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
