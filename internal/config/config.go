// Package config loads runtime settings from CHIRAL_VERIFY_* environment
// variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jmcleod/chiralgate/captcha"
	"github.com/jmcleod/chiralgate/gate"
	"github.com/jmcleod/chiralgate/internal/secret"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "CHIRAL_VERIFY"

// Config is the full runtime configuration.
type Config struct {
	APIBase      string        `mapstructure:"api_base"`
	APIEndpoint  string        `mapstructure:"api_endpoint"`
	APITimeout   time.Duration `mapstructure:"api_timeout"`
	DefaultCount int           `mapstructure:"default_count"`

	Timeout       time.Duration `mapstructure:"timeout"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	AutoReject    bool          `mapstructure:"auto_reject"`
	AdminIDs      []int64       `mapstructure:"admin_ids"`
	UsePrivate    bool          `mapstructure:"use_private"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	ListenAddr    string        `mapstructure:"listen_addr"`
	OneBotAPI     string        `mapstructure:"onebot_api"`
	OneBotToken   *secret.Token `mapstructure:"onebot_token"`
	OneBotSecret  *secret.Token `mapstructure:"onebot_secret"`
	OneBotTimeout time.Duration `mapstructure:"onebot_timeout"`
	Groups        []int64       `mapstructure:"groups"`
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue_size"`

	DataDir       string        `mapstructure:"data_dir"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword *secret.Token `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	AdminToken    *secret.Token `mapstructure:"admin_token"`
	LogLevel      string        `mapstructure:"log_level"`
}

var defaults = map[string]any{
	"api_base":       "http://localhost:9999",
	"api_endpoint":   captcha.DefaultEndpoint,
	"api_timeout":    "10s",
	"default_count":  0,
	"timeout":        "120s",
	"max_attempts":   3,
	"auto_reject":    true,
	"admin_ids":      "",
	"use_private":    true,
	"sweep_interval": "30s",
	"listen_addr":    ":8080",
	"onebot_api":     "http://127.0.0.1:5700",
	"onebot_token":   "",
	"onebot_secret":  "",
	"onebot_timeout": "10s",
	"groups":         "",
	"workers":        8,
	"queue_size":     64,
	"data_dir":       "./data",
	"redis_addr":     "",
	"redis_password": "",
	"redis_db":       0,
	"admin_token":    "",
	"log_level":      "info",
}

// Load reads the environment and, when configFile is non-empty, the file
// it names. Environment variables win over the file.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	if err := bindEnvs(v); err != nil {
		return nil, fmt.Errorf("failed to bind options to env vars: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// bindEnvs binds every mapstructure-tagged field to its environment
// variable, e.g. max_attempts to CHIRAL_VERIFY_MAX_ATTEMPTS.
func bindEnvs(v *viper.Viper) error {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		key, ok := t.Field(i).Tag.Lookup("mapstructure")
		if !ok || key == "-" {
			continue
		}
		env := EnvPrefix + "_" + strings.ToUpper(key)
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind field '%s' to env var '%s': %w", t.Field(i).Name, env, err)
		}
	}
	return nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		secondsHook,
		mapstructure.StringToTimeDurationHookFunc(),
		idListHook,
		tokenHook,
	)
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	idListType   = reflect.TypeOf([]int64(nil))
	tokenType    = reflect.TypeOf((*secret.Token)(nil))
)

// secondsHook reads bare numbers as seconds, so CHIRAL_VERIFY_TIMEOUT=120
// means two minutes.
func secondsHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(n * float64(time.Second)), nil
		}
		return s, nil
	}
	return data, nil
}

// idListHook accepts "1,2", "1 2" and "[1, 2]" for id lists.
func idListHook(from, to reflect.Type, data any) (any, error) {
	if to != idListType || from.Kind() != reflect.String {
		return data, nil
	}
	return ParseIDs(data.(string))
}

func tokenHook(from, to reflect.Type, data any) (any, error) {
	if to != tokenType || from.Kind() != reflect.String {
		return data, nil
	}
	return secret.NewToken(strings.TrimSpace(data.(string))), nil
}

// ParseIDs parses a list of account ids separated by commas or spaces,
// optionally wrapped in brackets.
func ParseIDs(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'`)
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Validate rejects settings the gate cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIBase) == "" {
		errs = append(errs, errors.New("api_base is required"))
	}
	if strings.TrimSpace(c.OneBotAPI) == "" {
		errs = append(errs, errors.New("onebot_api is required"))
	}
	if c.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("max_attempts must be positive, got %d", c.MaxAttempts))
	}
	if c.DefaultCount < 0 {
		errs = append(errs, fmt.Errorf("default_count must not be negative, got %d", c.DefaultCount))
	}
	for name, d := range map[string]time.Duration{
		"timeout":        c.Timeout,
		"api_timeout":    c.APITimeout,
		"sweep_interval": c.SweepInterval,
		"onebot_timeout": c.OneBotTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Workers <= 0 || c.QueueSize <= 0 {
		errs = append(errs, errors.New("workers and queue_size must be positive"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Gate returns the verification policy.
func (c *Config) Gate() gate.Config {
	return gate.Config{
		Timeout:     c.Timeout,
		MaxAttempts: c.MaxAttempts,
		AutoReject:  c.AutoReject,
		UsePrivate:  c.UsePrivate,
		AdminIDs:    c.AdminIDs,
	}
}

// Captcha returns the provider client options.
func (c *Config) Captcha() captcha.Options {
	return captcha.Options{
		BaseURL:      c.APIBase,
		Endpoint:     c.APIEndpoint,
		Timeout:      c.APITimeout,
		DefaultCount: c.DefaultCount,
	}
}
