package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type AudioConfig struct {
	BufferSize  int    `mapstructure:"buffer_size"`
	Capture     string `mapstructure:"capture"`
	CaptureFile string `mapstructure:"capture_file"`
	Output      string `mapstructure:"output"`
	Device      string `mapstructure:"device"`
}

type TransportConfig struct {
	Kind          string        `mapstructure:"kind"`
	EndpointID    string        `mapstructure:"endpoint_id"`
	Seeds         []string      `mapstructure:"seeds"`
	QueryInterval time.Duration `mapstructure:"query_interval"`
}

type LocationConfig struct {
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Nickname     string        `mapstructure:"nickname"`
	DataDir      string        `mapstructure:"data_dir"`
	ServiceID    string        `mapstructure:"service_id"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	Background   bool          `mapstructure:"background"`

	Audio     AudioConfig     `mapstructure:"audio"`
	Transport TransportConfig `mapstructure:"transport"`
	Location  LocationConfig  `mapstructure:"location"`
}

func (c *Config) Loc() domain.Location {
	return domain.Location{Latitude: c.Location.Latitude, Longitude: c.Location.Longitude}
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if c.Nickname != "" {
		if err := domain.ValidateNickname(c.Nickname); err != nil {
			errs = append(errs, fmt.Errorf("nickname: %w", err))
		}
	}
	if c.Audio.BufferSize <= 0 || c.Audio.BufferSize%2 != 0 {
		errs = append(errs, fmt.Errorf("audio.buffer_size must be a positive even number: %d", c.Audio.BufferSize))
	}
	switch c.Audio.Capture {
	case "arecord", "none":
	case "file":
		if c.Audio.CaptureFile == "" {
			errs = append(errs, errors.New("audio.capture_file required for file capture"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown audio.capture: %q", c.Audio.Capture))
	}
	switch c.Audio.Output {
	case "aplay", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown audio.output: %q", c.Audio.Output))
	}
	switch c.Transport.Kind {
	case "wsnet", "memnet":
	default:
		errs = append(errs, fmt.Errorf("unknown transport.kind: %q", c.Transport.Kind))
	}
	if c.RetryBackoff <= 0 {
		errs = append(errs, fmt.Errorf("retry_backoff must be positive: %s", c.RetryBackoff))
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("log_level: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Loader layers defaults, config/config.<CONFIG_ENV>.yaml, SLTALKIE_*
// environment variables and command-line flags, in increasing priority.
type Loader struct {
	v    *viper.Viper
	file string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("nickname", "")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("service_id", "com.floodcomms")
	v.SetDefault("retry_backoff", "2s")
	v.SetDefault("background", false)

	v.SetDefault("audio.buffer_size", 1280)
	v.SetDefault("audio.capture", "arecord")
	v.SetDefault("audio.capture_file", "")
	v.SetDefault("audio.output", "aplay")
	v.SetDefault("audio.device", "default")

	v.SetDefault("transport.kind", "wsnet")
	v.SetDefault("transport.endpoint_id", "")
	v.SetDefault("transport.seeds", []string{})
	v.SetDefault("transport.query_interval", "3s")

	v.SetDefault("location.latitude", 0.0)
	v.SetDefault("location.longitude", 0.0)
}

func flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("sltalkie", pflag.ContinueOnError)
	fs.String("config", "", "config file (default config/config.<CONFIG_ENV>.yaml)")
	fs.Int("port", 8080, "HTTP port for UI and peer links")
	fs.String("mode", "release", "gin mode: debug or release")
	fs.String("log-level", "info", "log level")
	fs.String("nickname", "", "name advertised to nearby devices")
	fs.String("data-dir", "./data", "where received messages are stored")
	fs.String("transport", "wsnet", "peer transport: wsnet or memnet")
	fs.StringSlice("seeds", nil, "host:port of nearby devices to query")
	fs.String("capture", "arecord", "capture backend: arecord, file or none")
	fs.String("capture-file", "", "raw PCM file used by the file capture backend")
	fs.String("output", "aplay", "output backend: aplay or none")
	fs.Bool("background", false, "start in background mode")
	return fs
}

var flagKeys = map[string]string{
	"port":         "port",
	"mode":         "mode",
	"log-level":    "log_level",
	"nickname":     "nickname",
	"data-dir":     "data_dir",
	"transport":    "transport.kind",
	"seeds":        "transport.seeds",
	"capture":      "audio.capture",
	"capture-file": "audio.capture_file",
	"output":       "audio.output",
	"background":   "background",
}

func NewLoader(args []string) (*Loader, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("SLTALKIE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fs := flagSet()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	for name, key := range flagKeys {
		// Only flags given on the command line override; BindPFlag would
		// otherwise shadow file values with flag defaults.
		if f := fs.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	fileName, _ := fs.GetString("config")
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	l := &Loader{v: v, file: fileName}
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
		l.file = ""
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}
	return l, nil
}

// File is the config file in use, empty when running on defaults.
func (l *Loader) File() string { return l.file }

func (l *Loader) Config() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Watch calls onChange with the re-read config after every file change.
// Invalid edits are logged and skipped.
func (l *Loader) Watch(onChange func(*Config)) {
	if l.file == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.Config()
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("file", e.Name).Msg("config reload rejected")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Str("op", e.Op.String()).Msg("config reloaded")
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// Load reads the config once and returns the loader for Watch.
func Load(args []string) (*Config, *Loader, error) {
	l, err := NewLoader(args)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := l.Config()
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("transport", cfg.Transport.Kind).Msg("config ready")
	return cfg, l, nil
}
