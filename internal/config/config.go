package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`

	// Client identity. GUID persistence belongs to the UI layer; here it
	// just arrives through config.
	GUID string `mapstructure:"guid"`
	Name string `mapstructure:"name"`

	TelemetryURL string `mapstructure:"telemetry_url"`
	TokenURL     string `mapstructure:"token_url"`
	SessionURL   string `mapstructure:"session_url"`

	// Proximity policy. Deployments disagree on thresholds, so they are
	// configuration, not constants.
	Near         float64 `mapstructure:"near"`
	Far          float64 `mapstructure:"far"`
	FarInclusive bool    `mapstructure:"far_inclusive"`
	PanRange     float64 `mapstructure:"pan_range"`

	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`

	APIPort    int    `mapstructure:"api_port"`
	Secret     string `mapstructure:"secret"`
	Microphone string `mapstructure:"microphone"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("name", "guest")
	v.SetDefault("telemetry_url", "ws://127.0.0.1:8181/positions")
	v.SetDefault("token_url", "http://127.0.0.1:8182")
	v.SetDefault("session_url", "ws://127.0.0.1:8183/rtc")
	v.SetDefault("near", 50.0)
	v.SetDefault("far", 150.0)
	v.SetDefault("far_inclusive", true)
	v.SetDefault("pan_range", 50.0)
	v.SetDefault("reconnect_delay", "2s")
	v.SetDefault("api_port", 7290)
	v.SetDefault("microphone", "")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Far <= cfg.Near {
		return nil, fmt.Errorf("far (%v) must exceed near (%v)", cfg.Far, cfg.Near)
	}
	fmt.Printf("🧩 Mode: %s | Telemetry: %s | Far: %v\n", cfg.Mode, cfg.TelemetryURL, cfg.Far)
	return &cfg, nil
}
