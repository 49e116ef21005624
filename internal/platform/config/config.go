package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the kiosk reads,
// e.g. KIOSK_ENDPOINT or KIOSK_MQTT_BROKER.
const EnvPrefix = "KIOSK"

// Config is the effective configuration of the kiosk daemon.
type Config struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	HTTPAddr  string `mapstructure:"http_addr" yaml:"http_addr"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	Engine          string `mapstructure:"engine" yaml:"engine"`
	VideoSink       string `mapstructure:"video_sink" yaml:"video_sink"`
	EngineVerbosity int    `mapstructure:"engine_verbosity" yaml:"engine_verbosity"`

	RTSPTimeout    time.Duration `mapstructure:"rtsp_timeout" yaml:"rtsp_timeout"`
	EventQueueSize int           `mapstructure:"event_queue_size" yaml:"event_queue_size"`

	ReconnectInitialDelay time.Duration `mapstructure:"reconnect_initial_delay" yaml:"reconnect_initial_delay"`
	ReconnectMaxDelay     time.Duration `mapstructure:"reconnect_max_delay" yaml:"reconnect_max_delay"`
	ErrorReconnectGrace   time.Duration `mapstructure:"error_reconnect_grace" yaml:"error_reconnect_grace"`

	OverlayTick time.Duration `mapstructure:"overlay_tick" yaml:"overlay_tick"`

	MQTT MQTTConfig `mapstructure:"mqtt" yaml:"mqtt"`
}

// MQTTConfig configures the optional status publisher. An empty Broker
// disables it.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker" yaml:"broker"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	Format   string `mapstructure:"format" yaml:"format"`
}

var (
	// ErrInvalidConfig wraps every validation failure returned by Validate.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// LoadEnv reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, LoadEnv returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// SetDefaults registers every key with its default value and binds the
// matching KIOSK_* environment variable.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("endpoint", "rtsp://192.168.1.75:8554/live")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("engine", "gst")
	v.SetDefault("video_sink", "autovideosink")
	v.SetDefault("engine_verbosity", 2)

	v.SetDefault("rtsp_timeout", 3*time.Second)
	v.SetDefault("event_queue_size", 64)

	// Zero initial delay keeps the reconnect immediate.
	v.SetDefault("reconnect_initial_delay", time.Duration(0))
	v.SetDefault("reconnect_max_delay", 30*time.Second)
	v.SetDefault("error_reconnect_grace", time.Duration(0))

	v.SetDefault("overlay_tick", time.Second)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "kiosk/status")
	v.SetDefault("mqtt.client_id", "rtsp-kiosk")
	v.SetDefault("mqtt.format", "json")
}

// Load builds a Config from defaults, the optional config file, and the
// environment. configFile may be empty, in which case kiosk.yaml is looked up
// in the working directory and /etc/rtsp-kiosk; a missing file is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("kiosk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/rtsp-kiosk")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges. Endpoint syntax is validated by the kiosk
// package when the endpoint is parsed.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Endpoint) == "":
		return fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	case c.Engine != "gst" && c.Engine != "sim":
		return fmt.Errorf("%w: engine must be gst or sim, got %q", ErrInvalidConfig, c.Engine)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("%w: event_queue_size must be positive", ErrInvalidConfig)
	case c.RTSPTimeout < time.Second:
		return fmt.Errorf("%w: rtsp_timeout must be at least 1s", ErrInvalidConfig)
	case c.ReconnectInitialDelay < 0 || c.ReconnectMaxDelay < 0 || c.ErrorReconnectGrace < 0:
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	case c.OverlayTick <= 0:
		return fmt.Errorf("%w: overlay_tick must be positive", ErrInvalidConfig)
	case c.MQTT.Format != "json" && c.MQTT.Format != "msgpack":
		return fmt.Errorf("%w: mqtt.format must be json or msgpack", ErrInvalidConfig)
	}
	return nil
}
