package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "YA"
	// EnvConfigFile names an optional config file read before the environment.
	EnvConfigFile = "YA_CONFIG"
)

type ClientConfig struct {
	RelayURL   string `mapstructure:"relay_url" validate:"required,url"`
	UserID     string `mapstructure:"user_id" validate:"required"`
	Call       string `mapstructure:"call"`
	Media      string `mapstructure:"media" validate:"oneof=audio audio+video"`
	AutoAccept bool   `mapstructure:"auto_accept"`
	LogLevel   string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`

	RingTimeout     time.Duration `mapstructure:"ring_timeout" validate:"gt=0"`
	DisconnectGrace time.Duration `mapstructure:"disconnect_grace" validate:"gt=0"`
	SendRetryDelay  time.Duration `mapstructure:"send_retry_delay" validate:"gte=0"`

	ICEServers             []string      `mapstructure:"ice_servers" validate:"dive,required"`
	ICEDisconnectedTimeout time.Duration `mapstructure:"ice_disconnected_timeout" validate:"gt=0"`
	ICEFailedTimeout       time.Duration `mapstructure:"ice_failed_timeout" validate:"gt=0"`
	ICEKeepalive           time.Duration `mapstructure:"ice_keepalive" validate:"gt=0"`
	ICELoopback            bool          `mapstructure:"ice_loopback"`

	VideoMaxWidth  int `mapstructure:"video_max_width" validate:"gt=0"`
	VideoMaxHeight int `mapstructure:"video_max_height" validate:"gt=0"`
	VideoBitrate   int `mapstructure:"video_bitrate" validate:"gt=0"`
}

type RelayConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port" validate:"required,gt=0,lte=65535"`
	LogLevel     string        `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	StaticDir    string        `mapstructure:"static_dir"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	PongWait     time.Duration `mapstructure:"pong_wait" validate:"gt=0"`
	HistorySize  int           `mapstructure:"history_size" validate:"gt=0"`
}

func (c RelayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ClientFlags registers the client's command line flags on fs.
func ClientFlags(fs *pflag.FlagSet) {
	fs.String("user", "", "local user id")
	fs.String("call", "", "user to call once connected")
	fs.String("relay", "", "relay websocket url")
	fs.String("media", "", "media kind: audio or audio+video")
	fs.Bool("auto-accept", false, "accept incoming calls without asking")
	fs.String("log-level", "", "log level")
}

func RelayFlags(fs *pflag.FlagSet) {
	fs.Int("port", 0, "listen port")
	fs.String("static-dir", "", "directory served at /")
	fs.String("log-level", "", "log level")
}

var clientFlagKeys = map[string]string{
	"user":        "user_id",
	"call":        "call",
	"relay":       "relay_url",
	"media":       "media",
	"auto-accept": "auto_accept",
	"log-level":   "log_level",
}

var relayFlagKeys = map[string]string{
	"port":       "port",
	"static-dir": "static_dir",
	"log-level":  "log_level",
}

func LoadClient(fs *pflag.FlagSet) (*ClientConfig, error) {
	v, err := newViper(fs, clientFlagKeys)
	if err != nil {
		return nil, err
	}
	v.SetDefault("relay_url", "ws://localhost:8080/ws")
	v.SetDefault("user_id", "")
	v.SetDefault("call", "")
	v.SetDefault("media", "audio")
	v.SetDefault("auto_accept", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("ring_timeout", 40*time.Second)
	v.SetDefault("disconnect_grace", 5*time.Second)
	v.SetDefault("send_retry_delay", 250*time.Millisecond)
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("ice_disconnected_timeout", 5*time.Second)
	v.SetDefault("ice_failed_timeout", 25*time.Second)
	v.SetDefault("ice_keepalive", 2*time.Second)
	v.SetDefault("ice_loopback", false)
	v.SetDefault("video_max_width", 640)
	v.SetDefault("video_max_height", 480)
	v.SetDefault("video_bitrate", 1_500_000)

	var cfg ClientConfig
	if err := decode(v, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadRelay(fs *pflag.FlagSet) (*RelayConfig, error) {
	v, err := newViper(fs, relayFlagKeys)
	if err != nil {
		return nil, err
	}
	v.SetDefault("host", "")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("static_dir", "")
	v.SetDefault("write_timeout", 10*time.Second)
	v.SetDefault("pong_wait", 60*time.Second)
	v.SetDefault("history_size", 500)

	var cfg RelayConfig
	if err := decode(v, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Level parses a validated log level.
func Level(s string) zerolog.Level {
	l, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}

func newViper(fs *pflag.FlagSet, flagKeys map[string]string) (*viper.Viper, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(EnvConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}
	return v, nil
}

func decode(v *viper.Viper, out any) error {
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if err := validator.New().Struct(out); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
