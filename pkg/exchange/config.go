package exchange

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProductionURL = "https://api.pro.coinbase.com"
	SandboxURL    = "https://api-public.sandbox.pro.coinbase.com"

	DefaultPublicRate     = 3
	DefaultPrivateRate    = 5
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultFillTimeout    = 30 * time.Second
	DefaultCancelAttempts = 5
	DefaultEpochYear      = 2021
	DefaultLockTimeout    = 5 * time.Second

	// MaxEpochSpan is the largest year offset whose ids still fit an int32.
	MaxEpochSpan = 21
)

// Ledger kinds.
const (
	LedgerNone     = "none"
	LedgerFile     = "file"
	LedgerPostgres = "postgres"
	LedgerMySQL    = "mysql"
)

// Config captures everything needed to construct a Coinbase Pro client.
type Config struct {
	Key        string `yaml:"key"`
	Passphrase string `yaml:"passphrase"`
	Secret     string `yaml:"secret"`
	Sandbox    bool   `yaml:"sandbox"`
	BaseURL    string `yaml:"base_url"`
	UserAgent  string `yaml:"user_agent"`
	// STP is the self-trade prevention flag sent with every order (dc, co, cn, cb).
	STP string `yaml:"stp"`

	PublicRate     int `yaml:"public_rate"`
	PrivateRate    int `yaml:"private_rate"`
	CancelAttempts int `yaml:"cancel_attempts"`

	TimeoutRaw      string        `yaml:"timeout"`
	Timeout         time.Duration `yaml:"-"`
	PollIntervalRaw string        `yaml:"poll_interval"`
	PollInterval    time.Duration `yaml:"-"`
	FillTimeoutRaw  string        `yaml:"fill_timeout"`
	FillTimeout     time.Duration `yaml:"-"`

	OrderID OrderIDConfig `yaml:"order_id"`
	Ledger  LedgerConfig  `yaml:"ledger"`
}

// OrderIDConfig locates the shared client order id region.
type OrderIDConfig struct {
	Dir            string        `yaml:"dir"`
	EpochYear      int           `yaml:"epoch_year"`
	LockTimeoutRaw string        `yaml:"lock_timeout"`
	LockTimeout    time.Duration `yaml:"-"`
}

// LedgerConfig selects where closed trades are recorded.
type LedgerConfig struct {
	Kind string `yaml:"kind"`
	Dir  string `yaml:"dir"`
}

// Credentials returns the API key triple.
func (c *Config) Credentials() Credentials {
	return Credentials{Key: c.Key, Passphrase: c.Passphrase, Secret: c.Secret}
}

// Endpoint resolves the REST root URL.
func (c *Config) Endpoint() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if c.Sandbox {
		return SandboxURL
	}
	return ProductionURL
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open exchange config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read exchange config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal exchange config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	c.expandEnv()
	if err := c.parseDurations(); err != nil {
		return err
	}
	if c.PublicRate == 0 {
		c.PublicRate = DefaultPublicRate
	}
	if c.PrivateRate == 0 {
		c.PrivateRate = DefaultPrivateRate
	}
	if c.CancelAttempts == 0 {
		c.CancelAttempts = DefaultCancelAttempts
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.FillTimeout == 0 {
		c.FillTimeout = DefaultFillTimeout
	}
	if c.OrderID.EpochYear == 0 {
		c.OrderID.EpochYear = DefaultEpochYear
	}
	if c.OrderID.LockTimeout == 0 {
		c.OrderID.LockTimeout = DefaultLockTimeout
	}
	if c.OrderID.Dir == "" {
		c.OrderID.Dir = "Data"
	}
	c.Ledger.Kind = strings.ToLower(c.Ledger.Kind)
	if c.Ledger.Kind == "" {
		c.Ledger.Kind = LedgerNone
	}
	return nil
}

func (c *Config) expandEnv() {
	c.Key = strings.TrimSpace(os.ExpandEnv(c.Key))
	c.Passphrase = strings.TrimSpace(os.ExpandEnv(c.Passphrase))
	c.Secret = strings.TrimSpace(os.ExpandEnv(c.Secret))
	c.BaseURL = strings.TrimSpace(os.ExpandEnv(c.BaseURL))
	c.UserAgent = strings.TrimSpace(os.ExpandEnv(c.UserAgent))
	c.STP = strings.TrimSpace(os.ExpandEnv(c.STP))
	c.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(c.TimeoutRaw))
	c.PollIntervalRaw = strings.TrimSpace(os.ExpandEnv(c.PollIntervalRaw))
	c.FillTimeoutRaw = strings.TrimSpace(os.ExpandEnv(c.FillTimeoutRaw))
	c.OrderID.Dir = strings.TrimSpace(os.ExpandEnv(c.OrderID.Dir))
	c.OrderID.LockTimeoutRaw = strings.TrimSpace(os.ExpandEnv(c.OrderID.LockTimeoutRaw))
	c.Ledger.Kind = strings.TrimSpace(os.ExpandEnv(c.Ledger.Kind))
	c.Ledger.Dir = strings.TrimSpace(os.ExpandEnv(c.Ledger.Dir))
}

func (c *Config) parseDurations() error {
	var err error
	if c.Timeout, err = parseDuration("timeout", c.TimeoutRaw); err != nil {
		return err
	}
	if c.PollInterval, err = parseDuration("poll_interval", c.PollIntervalRaw); err != nil {
		return err
	}
	if c.FillTimeout, err = parseDuration("fill_timeout", c.FillTimeoutRaw); err != nil {
		return err
	}
	if c.OrderID.LockTimeout, err = parseDuration("order_id.lock_timeout", c.OrderID.LockTimeoutRaw); err != nil {
		return err
	}
	return nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("exchange config: invalid %s %q: %w", field, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("exchange config: %s must be positive, got %s", field, d)
	}
	return d, nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Key == "" || c.Passphrase == "" || c.Secret == "" {
		return fmt.Errorf("exchange config: key, passphrase and secret are required")
	}
	if c.PublicRate < 0 || c.PrivateRate < 0 {
		return fmt.Errorf("exchange config: rate limits must be positive")
	}
	if c.CancelAttempts < 0 {
		return fmt.Errorf("exchange config: cancel_attempts must be positive")
	}
	switch c.STP {
	case "", "dc", "co", "cn", "cb":
	default:
		return fmt.Errorf("exchange config: unsupported stp %q", c.STP)
	}
	if err := CheckEpochYear(c.OrderID.EpochYear, time.Now()); err != nil {
		return fmt.Errorf("exchange config: order_id.epoch_year: %w", err)
	}
	switch c.Ledger.Kind {
	case LedgerNone, LedgerPostgres, LedgerMySQL:
	case LedgerFile:
		if c.Ledger.Dir == "" {
			return fmt.Errorf("exchange config: ledger.dir is required for file ledger")
		}
	default:
		return fmt.Errorf("exchange config: unsupported ledger kind %q", c.Ledger.Kind)
	}
	return nil
}

// CheckEpochYear reports whether ids minted at now with the given epoch year
// stay positive and within int32.
func CheckEpochYear(epochYear int, now time.Time) error {
	span := now.Year() - epochYear
	if span < 0 || span > MaxEpochSpan {
		return fmt.Errorf("epoch year %d is out of range for %d (allowed %d..%d)",
			epochYear, now.Year(), now.Year()-MaxEpochSpan, now.Year())
	}
	return nil
}
