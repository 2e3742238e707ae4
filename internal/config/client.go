package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig configures the transfer-entry terminal client.
type ClientConfig struct {
	API struct {
		BaseURL string        `mapstructure:"base_url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"api"`

	Auth struct {
		Email    string
		Password string
		Token    string
	} `mapstructure:"auth"`

	Entry struct {
		Date         string
		Parallelism  int
		LotLimit     int `mapstructure:"lot_limit"`
		LookbackDays int `mapstructure:"lookback_days"`
	} `mapstructure:"entry"`

	Log struct {
		File  string
		Level string
	} `mapstructure:"log"`

	// key -> action, e.g. "j": "down", "g": "+1000"
	Keys map[string]string `mapstructure:"keys"`
}

// LoadClient reads an optional YAML file; FLOWER_* environment variables
// override it (FLOWER_API_BASE_URL, FLOWER_AUTH_TOKEN, ...).
func LoadClient(path string) (*ClientConfig, error) {
	v := viper.New()
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("auth.email", "")
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.token", "")
	v.SetDefault("entry.date", "")
	v.SetDefault("entry.parallelism", 4)
	v.SetDefault("entry.lot_limit", 1000)
	v.SetDefault("entry.lookback_days", 14)
	v.SetDefault("log.file", "transfer-entry.log")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("FLOWER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c ClientConfig
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if c.API.BaseURL == "" {
		return nil, fmt.Errorf("api.base_url is required")
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.Auth.Token == "" && (c.Auth.Email == "" || c.Auth.Password == "") {
		return nil, fmt.Errorf("auth.token or auth.email/auth.password is required")
	}
	return &c, nil
}

// WorkDate is entry.date, or today when unset.
func (c *ClientConfig) WorkDate(now time.Time) (time.Time, error) {
	if c.Entry.Date == "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	}
	t, err := time.ParseInLocation("2006-01-02", c.Entry.Date, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("entry.date: %w", err)
	}
	return t, nil
}
