// Package config prepares the Viper instance the CLI reads settings from: a
// config file, SCRAPER_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. SCRAPER_FETCHER_MODE=colly.
const EnvPrefix = "SCRAPER"

// NewViper returns a Viper reading path, or a "scraper" config file from the
// usual search paths when path is empty. A missing search-path file is not an
// error; the second return value names the file actually read.
func NewViper(path string) (*viper.Viper, string, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("scraper")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.review-scraper")
		v.AddConfigPath("/etc/review-scraper/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return v, "", nil
		}
		return nil, "", fmt.Errorf("read config: %w", err)
	}
	return v, v.ConfigFileUsed(), nil
}
