package icapclient

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved shape of the ambient settings the CLI front door
// (cmd/icapcli) and any embedding service load via flags, environment
// variables (ICAP_*), or a YAML file — the configuration layer §4.7 adds
// around the core client.
type Config struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	ServiceName      string        `mapstructure:"service_name"`
	Secure           bool          `mapstructure:"secure"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	PreviewOverride  int           `mapstructure:"preview_override"`
	CompareIdentical bool          `mapstructure:"compare_identical_content"`
	LogLevel         string        `mapstructure:"log_level"`
	RequestSource    string        `mapstructure:"request_source"`
}

// DefaultConfig mirrors DefaultRequestInformation's defaults where the two
// overlap, plus the handful of settings only the CLI front door needs.
func DefaultConfig() Config {
	return Config{
		Port:           1344,
		ServiceName:    "respmod",
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    30 * time.Second,
		LogLevel:       "info",
		RequestSource:  "localhost",
	}
}

// LoadConfig resolves a Config from (in ascending priority) built-in
// defaults, an optional YAML config file, and ICAP_*-prefixed environment
// variables, in viper's usual layering.
func LoadConfig(v *viper.Viper, configFile string) (Config, error) {
	cfg := DefaultConfig()

	v.SetEnvPrefix("ICAP")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("icap: reading config file %s: %w", configFile, err)
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".icap-client")
		_ = v.ReadInConfig() // absent config file is not an error
	}

	setIfPresent(v, "host", &cfg.Host)
	setIfPresent(v, "service_name", &cfg.ServiceName)
	setIfPresent(v, "log_level", &cfg.LogLevel)
	setIfPresent(v, "request_source", &cfg.RequestSource)

	if v.IsSet("port") {
		cfg.Port = v.GetInt("port")
	}
	if v.IsSet("secure") {
		cfg.Secure = v.GetBool("secure")
	}
	if v.IsSet("connect_timeout") {
		cfg.ConnectTimeout = v.GetDuration("connect_timeout")
	}
	if v.IsSet("read_timeout") {
		cfg.ReadTimeout = v.GetDuration("read_timeout")
	}
	if v.IsSet("preview_override") {
		cfg.PreviewOverride = v.GetInt("preview_override")
	}
	if v.IsSet("compare_identical_content") {
		cfg.CompareIdentical = v.GetBool("compare_identical_content")
	}

	return cfg, nil
}

func setIfPresent(v *viper.Viper, key string, dst *string) {
	if s := v.GetString(key); s != "" {
		*dst = s
	}
}

// ServiceInformation converts the loaded configuration into the client's
// connection identity.
func (c Config) ServiceInformation() ServiceInformation {
	return ServiceInformation{
		Host:        c.Host,
		Port:        c.Port,
		ServiceName: c.ServiceName,
		Secure:      c.Secure,
	}
}

// RequestInformation converts the loaded configuration into per-call
// parameters for Client.Validate.
func (c Config) RequestInformation() RequestInformation {
	info := DefaultRequestInformation()
	info.ConnectTimeout = c.ConnectTimeout
	info.ReadTimeout = c.ReadTimeout
	if c.RequestSource != "" {
		info.RequestSource = c.RequestSource
	}
	if c.PreviewOverride > 0 {
		preview := c.PreviewOverride
		info.PreviewOverride = &preview
	}
	return info
}
