//go:build linux
// +build linux

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// loadConfig builds the daemon's Viper instance. An explicit path is
// required to exist; otherwise the usual locations are searched and
// defaults apply when no file is found.
func loadConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("mlmed")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/mlmed")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MLMED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("interface", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 14)
	v.SetDefault("metrics.listen", ":9477")
	v.SetDefault("mlme.beacon_loss_timeout", 40)
	v.SetDefault("mlme.signal_report_ticks", 10)
	v.SetDefault("mlme.connect_timeout_bi", 50)
	v.SetDefault("network.ssid", "")
	v.SetDefault("network.scan_channels", []int{1, 6, 11})

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return v, nil
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func scanChannels(v *viper.Viper) []uint8 {
	var out []uint8
	for _, ch := range v.GetIntSlice("network.scan_channels") {
		if ch > 0 && ch < 256 {
			out = append(out, uint8(ch))
		}
	}
	return out
}
