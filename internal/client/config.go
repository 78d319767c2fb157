package client

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Duration accepts Go duration strings ("3s") or plain seconds ("3", "2.5").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func parseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(f * float64(time.Second)), nil
}

var durationType = reflect.TypeOf(Duration(0))

// durationHook decodes file and env values into Duration. Bare numbers are
// seconds.
func durationHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case Duration:
		return v, nil
	case time.Duration:
		return Duration(v), nil
	case string:
		d, err := parseSeconds(v)
		return Duration(d), err
	case int:
		return Duration(time.Duration(v) * time.Second), nil
	case int64:
		return Duration(time.Duration(v) * time.Second), nil
	case float64:
		return Duration(time.Duration(v * float64(time.Second))), nil
	default:
		return data, nil
	}
}

// Config is the device process configuration.
type Config struct {
	Server   string `mapstructure:"server"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	PollInterval      Duration `mapstructure:"poll_interval"`
	RequestTimeout    Duration `mapstructure:"request_timeout"`
	DownloadTimeout   Duration `mapstructure:"download_timeout"`
	TelemetryTimeout  Duration `mapstructure:"telemetry_timeout"`
	HeartbeatInterval Duration `mapstructure:"heartbeat_interval"`

	StateDir string `mapstructure:"state_dir"`
	// LogDir receives one client_YYYY-MM-DD.log per day unless LogPath
	// names a single file.
	LogDir            string `mapstructure:"log_dir"`
	LogPath           string `mapstructure:"log_path"`
	LogLevel          string `mapstructure:"log_level"`
	ServerLogMinLevel string `mapstructure:"server_log_min_level"`

	// Player overrides the platform playback command, e.g. "mpv --no-video {path}".
	Player string `mapstructure:"player"`
}

func defaultConfig() Config {
	return Config{
		Server:            "http://127.0.0.1:8000",
		PollInterval:      Duration(3 * time.Second),
		RequestTimeout:    Duration(5 * time.Second),
		DownloadTimeout:   Duration(60 * time.Second),
		TelemetryTimeout:  Duration(3 * time.Second),
		HeartbeatInterval: Duration(60 * time.Second),
		StateDir:          os.TempDir(),
		LogDir:            "log",
		LogLevel:          "info",
		ServerLogMinLevel: "INFO",
	}
}

// LoadConfig reads path (optional, YAML) and then MFMC_* environment
// variables, which take precedence.
func LoadConfig(path string) (Config, error) {
	v := viper.New()

	d := defaultConfig()
	v.SetDefault("server", d.Server)
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("download_timeout", d.DownloadTimeout)
	v.SetDefault("telemetry_timeout", d.TelemetryTimeout)
	v.SetDefault("heartbeat_interval", d.HeartbeatInterval)
	v.SetDefault("state_dir", d.StateDir)
	v.SetDefault("log_dir", d.LogDir)
	v.SetDefault("log_path", "")
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("server_log_min_level", d.ServerLogMinLevel)
	v.SetDefault("player", "")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("MFMC")
	v.AutomaticEnv()
	// Deployed clients set the heartbeat in seconds under this name.
	_ = v.BindEnv("heartbeat_interval", "MFMC_HEARTBEAT_INTERVAL_SEC", "MFMC_HEARTBEAT_INTERVAL")

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(durationHook))); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	cfg.Server = strings.TrimRight(strings.TrimSpace(cfg.Server), "/")
	cfg.ServerLogMinLevel = strings.ToUpper(strings.TrimSpace(cfg.ServerLogMinLevel))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	u, err := url.Parse(c.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: server must be an http(s) URL, got %q", c.Server)
	}
	if c.Username == "" {
		return errors.New("config: username must be set (MFMC_USERNAME)")
	}
	if c.Password == "" {
		return errors.New("config: password must be set (MFMC_PASSWORD)")
	}
	for name, d := range map[string]Duration{
		"poll_interval":     c.PollInterval,
		"request_timeout":   c.RequestTimeout,
		"download_timeout":  c.DownloadTimeout,
		"telemetry_timeout": c.TelemetryTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	if c.HeartbeatInterval < 0 {
		return errors.New("config: heartbeat_interval must not be negative")
	}
	if c.StateDir == "" {
		return errors.New("config: state_dir must be set")
	}
	return nil
}

// MarshalZerologObject logs the effective configuration. The password is
// never included.
func (c Config) MarshalZerologObject(e *zerolog.Event) {
	e.Str("server", c.Server).
		Str("user", c.Username).
		Dur("poll", c.PollInterval.Std()).
		Dur("timeout", c.RequestTimeout.Std()).
		Dur("dl_timeout", c.DownloadTimeout.Std()).
		Dur("heartbeat", c.HeartbeatInterval.Std()).
		Str("state_dir", c.StateDir).
		Str("log_dir", c.LogDir).
		Str("server_log_min", c.ServerLogMinLevel)
	if c.LogPath != "" {
		e.Str("log_path", c.LogPath)
	}
	if c.Player != "" {
		e.Str("player", c.Player)
	}
}
