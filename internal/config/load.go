package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// NewViper creates a viper instance preloaded with defaults. When path is
// not empty the file is read; its format follows the extension.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("DEVSERVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	return v, nil
}

// SetDefaults registers the defaults from Default on v
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("content_base", d.ContentBase)
	v.SetDefault("content_base_public_path", d.ContentBasePublicPath)
	v.SetDefault("index", d.Index)
	v.SetDefault("serve_index", d.ServeIndex)
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("proxy_timeout", d.ProxyTimeout)
}

// Load decodes and validates the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		fallbackHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Watch reloads the config file on change and hands every valid result to
// onChange. Invalid files are reported to onError and otherwise ignored.
func Watch(v *viper.Viper, onChange func(*Config), onError func(error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		cfg, err := Load(v)
		if err != nil {
			onError(fmt.Errorf("reload %s: %w", e.Name, err))
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// fallbackHook accepts the short forms of history_api_fallback: a boolean,
// or a string naming the fallback document. Naming a document also turns the
// dot rule off, so "/users/jane.doe" still gets it.
func fallbackHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(FallbackConfig{}) {
		return data, nil
	}

	switch v := data.(type) {
	case bool:
		return FallbackConfig{Enabled: v}, nil
	case string:
		if v == "" {
			return FallbackConfig{}, nil
		}
		if enabled, err := strconv.ParseBool(v); err == nil {
			return FallbackConfig{Enabled: enabled}, nil
		}
		return FallbackConfig{Enabled: true, Target: v, DisableDotRule: true}, nil
	case map[string]interface{}:
		// A table without "enabled" turns the fallback on
		if _, ok := v["enabled"]; ok {
			return v, nil
		}
		m := make(map[string]interface{}, len(v)+1)
		for k, val := range v {
			m[k] = val
		}
		m["enabled"] = true
		return m, nil
	}

	return data, nil
}
