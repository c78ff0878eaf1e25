/*
   Copyright The Soci Snapshotter Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const (
	// DefaultConfigPath is the default filesystem path for the service configuration file.
	DefaultConfigPath = "/etc/sequence-archiver/config.toml"
)

type Config struct {
	// Address is the TCP address the download API listens on.
	Address string `toml:"address"`

	// MetricsAddress is address for the metrics API
	MetricsAddress string `toml:"metrics_address"`

	// MetricsNetwork is the type of network for the metrics API (e.g. tcp or unix)
	MetricsNetwork string `toml:"metrics_network"`

	// NoPrometheus is a flag to disable the emission of the metrics
	NoPrometheus bool `toml:"no_prometheus"`

	// DebugAddress is an address where the service exposes /debug/ endpoints.
	DebugAddress string `toml:"debug_address"`

	DownloadConfig            `toml:"download"`
	DRSConfig                 `toml:"drs"`
	IndexConfig               `toml:"index"`
	RetryableHTTPClientConfig `toml:"http"`
}

type configParser func(*Config) error

var parsers = []configParser{parseRootConfig, parseDownloadConfig, parseDRSConfig, parseIndexConfig, parseRetryableHTTPClientConfig}

// NewConfig returns an initialized Config with default values set.
func NewConfig() *Config {
	cfg := &Config{}
	parseConfig(cfg)
	return cfg
}

// NewConfigFromToml loads the configuration at cfgPath, fills in defaults and
// applies environment overrides. A missing file at DefaultConfigPath is not an error.
func NewConfigFromToml(cfgPath string) (*Config, error) {
	cfg := &Config{}
	f, err := os.Open(cfgPath)
	if err != nil {
		if !os.IsNotExist(err) || cfgPath != DefaultConfigPath {
			return nil, fmt.Errorf("failed to open config file %q: %w", cfgPath, err)
		}
	} else {
		defer f.Close()
		if err = toml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %q: %w", cfgPath, err)
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	parseConfig(cfg)
	return cfg, nil
}

func parseConfig(cfg *Config) {
	for _, p := range parsers {
		p(cfg)
	}
}

func parseRootConfig(cfg *Config) error {
	if cfg.Address == "" {
		cfg.Address = defaultAddress
	}
	if cfg.MetricsNetwork == "" {
		cfg.MetricsNetwork = defaultMetricsNetwork
	}
	return nil
}
