// Package config loads the tool's settings from a config file,
// environment variables, and defaults.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every tunable the tool reads at startup. Command-line
// flags override whatever is loaded here.
type Config struct {
	CacheDir   string   `mapstructure:"cache_dir"`
	BundledDir string   `mapstructure:"bundled_dir"`
	Mirrors    []string `mapstructure:"mirrors"`
	Catalog    struct {
		// MaxAge is the catalog refresh interval in seconds.
		MaxAge int `mapstructure:"max_age"`
	} `mapstructure:"catalog"`
	Worker struct {
		// Reuse keeps one worker process alive per addon instead of
		// spawning a fresh one for every invocation.
		Reuse bool `mapstructure:"reuse"`
	} `mapstructure:"worker"`
}

// Load reads kodidev.yml from the current directory or the user config
// directory. Environment variables with a KODIDEV_ prefix override file
// values, e.g. KODIDEV_CACHE_DIR or KODIDEV_CATALOG_MAX_AGE.
func Load() (*Config, error) {
	viper.SetConfigName("kodidev")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		viper.AddConfigPath(filepath.Join(dir, "kodidev"))
	}

	viper.SetEnvPrefix("KODIDEV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("cache_dir", defaultCacheDir())
	viper.SetDefault("bundled_dir", "")
	viper.SetDefault("mirrors", []string{"https://mirrors.kodi.tv/addons/krypton"})
	viper.SetDefault("catalog.max_age", 5*24*60*60)
	viper.SetDefault("worker.reuse", true)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "kodidev")
	}
	return filepath.Join(dir, "kodidev")
}
