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
	"strconv"
)

// Environment variables that override values from the config file.
const (
	EnvPort           = "PORT"
	EnvSequencesLimit = "SEQ_FILE_DOWNLOAD_LIMIT"
	EnvDRSProtocol    = "DRS_PROTOCOL"
	EnvDRSObjectPath  = "DRS_OBJECT_PATH"
	EnvIndexHost      = "ES_HOST"
	EnvIndexName      = "ES_INDEX"
	EnvIndexUser      = "ES_USER"
	EnvIndexPassword  = "ES_PASS"
)

type lookupEnvFunc func(string) (string, bool)

// applyEnv overrides cfg with any of the supported environment variables that are set.
// Credentials are usually injected this way rather than written to the config file.
func applyEnv(cfg *Config, lookup lookupEnvFunc) error {
	if v, ok := lookup(EnvPort); ok && v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		cfg.Address = ":" + v
	}
	if v, ok := lookup(EnvSequencesLimit); ok && v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvSequencesLimit, v, err)
		}
		cfg.DownloadConfig.SequencesLimit = limit
	}

	strs := map[string]*string{
		EnvDRSProtocol:   &cfg.DRSConfig.Protocol,
		EnvDRSObjectPath: &cfg.DRSConfig.ObjectPath,
		EnvIndexHost:     &cfg.IndexConfig.Host,
		EnvIndexName:     &cfg.IndexConfig.Index,
		EnvIndexUser:     &cfg.IndexConfig.User,
		EnvIndexPassword: &cfg.IndexConfig.Password,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	return nil
}
