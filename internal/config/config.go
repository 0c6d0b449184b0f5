// Package config loads and validates application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/spf13/viper"
)

// Backend modes.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Config is the resolved application configuration.
type Config struct {
	DatabasePath string
	Backend      string

	BankAPI BankAPIConfig
	PIN     PINConfig
	Review  ReviewConfig
	AMQP    AMQPConfig
	Logging LoggingConfig
}

// BankAPIConfig configures the remote bank backend.
type BankAPIConfig struct {
	BaseURL       string
	Token         string
	SafeAccountID string
	Timeout       time.Duration
}

// PINConfig configures the local verifier.
type PINConfig struct {
	Hash string
}

// ReviewConfig tunes review-mark retries.
type ReviewConfig struct {
	MarkAttempts     int
	MarkInitialDelay time.Duration
}

// AMQPConfig configures the optional review-event publisher. An empty URL disables it.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// LoggingConfig selects slog level and format.
type LoggingConfig struct {
	Level  string
	Format string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "~/.local/share/wedge/wedge.db")
	v.SetDefault("backend", BackendLocal)
	v.SetDefault("bank_api.timeout", 30*time.Second)
	v.SetDefault("review.mark_attempts", 3)
	v.SetDefault("review.mark_initial_delay", 100*time.Millisecond)
	v.SetDefault("amqp.exchange", "wedding-ledger")
	v.SetDefault("amqp.routing_key", "review.resolved")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load builds a Config from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabasePath: ExpandPath(v.GetString("database.path")),
		Backend:      strings.ToLower(v.GetString("backend")),
		BankAPI: BankAPIConfig{
			BaseURL: v.GetString("bank_api.base_url"),
			Token:         v.GetString("bank_api.token"),
			SafeAccountID: v.GetString("bank_api.safe_account_id"),
			Timeout:       v.GetDuration("bank_api.timeout"),
		},
		PIN: PINConfig{
			Hash: v.GetString("pin.hash"),
		},
		Review: ReviewConfig{
			MarkAttempts:     v.GetInt("review.mark_attempts"),
			MarkInitialDelay: v.GetDuration("review.mark_initial_delay"),
		},
		AMQP: AMQPConfig{
			URL:        v.GetString("amqp.url"),
			Exchange:   v.GetString("amqp.exchange"),
			RoutingKey: v.GetString("amqp.routing_key"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if c.DatabasePath == "" {
		problems = append(problems, "database.path cannot be empty")
	}

	switch c.Backend {
	case BackendLocal:
	case BackendRemote:
		if c.BankAPI.BaseURL == "" {
			problems = append(problems, "bank_api.base_url is required for the remote backend")
		} else if u, err := url.Parse(c.BankAPI.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Sprintf("invalid bank_api.base_url %q: must be an http(s) URL", c.BankAPI.BaseURL))
		}
		if c.BankAPI.SafeAccountID == "" {
			problems = append(problems, "bank_api.safe_account_id is required for the remote backend")
		}
		if c.BankAPI.Timeout <= 0 {
			problems = append(problems, fmt.Sprintf("invalid bank_api.timeout %v: must be positive", c.BankAPI.Timeout))
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid backend %q: must be %s or %s", c.Backend, BackendLocal, BackendRemote))
	}

	if c.Review.MarkAttempts < 1 || c.Review.MarkAttempts > 10 {
		problems = append(problems, fmt.Sprintf("invalid review.mark_attempts %d: must be between 1 and 10", c.Review.MarkAttempts))
	}
	if c.Review.MarkInitialDelay < 0 {
		problems = append(problems, "review.mark_initial_delay cannot be negative")
	}

	if c.AMQP.URL != "" {
		if u, err := url.Parse(c.AMQP.URL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid amqp.url: %v", err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid amqp.url scheme %q: must be amqp or amqps", u.Scheme))
		}
		if c.AMQP.Exchange == "" {
			problems = append(problems, "amqp.exchange cannot be empty when amqp.url is set")
		}
	}

	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, fmt.Sprintf("invalid logging.level %q", c.Logging.Level))
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		problems = append(problems, fmt.Sprintf("invalid logging.format %q: must be console or json", c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n- %s", common.ErrInvalidConfig, strings.Join(problems, "\n- "))
	}
	return nil
}

// NeedsPIN reports whether authorization is verified locally.
func (c *Config) NeedsPIN() bool {
	return c.Backend == BackendLocal
}

// ExpandPath resolves a leading ~ or ~/ against the home directory, then
// expands $VAR references. ~user forms are left alone.
func ExpandPath(path string) string {
	if rest, ok := strings.CutPrefix(path, "~"); ok && (rest == "" || strings.HasPrefix(rest, "/")) {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, rest)
		}
	}
	return os.ExpandEnv(path)
}
