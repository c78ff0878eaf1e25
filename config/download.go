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

// DownloadConfig is config for the sequence download pipeline.
type DownloadConfig struct {
	// SequencesLimit is the maximum number of sequence ids accepted per request.
	SequencesLimit int `toml:"sequences_limit"`

	// MaxConcurrency bounds the number of files resolved at once across a batch.
	// 0 means unbounded.
	MaxConcurrency int64 `toml:"max_concurrency"`

	// FlushEntries flushes the response after every archive entry.
	FlushEntries bool `toml:"flush_entries"`
}

// DRSConfig is config for the object-resolution (DRS) service.
type DRSConfig struct {
	// Protocol is the scheme used to reach the DRS host, e.g. https.
	Protocol string `toml:"protocol"`

	// ObjectPath is the path segment between the host and the object id.
	ObjectPath string `toml:"object_path"`

	// RequestsPerSecond limits metadata requests to the DRS service. 0 means unlimited.
	RequestsPerSecond float64 `toml:"requests_per_second"`

	// Burst is the limiter burst size. Defaults to 1 when a rate is set.
	Burst int `toml:"burst"`
}

// IndexConfig is config for the search index holding sequence file manifests.
type IndexConfig struct {
	Host     string `toml:"host"`
	Index    string `toml:"index"`
	User     string `toml:"user"`
	Password string `toml:"password"`

	// IDField is the document field matched against the requested sequence ids.
	IDField string `toml:"id_field"`

	// FilesField is the document field holding the file records.
	FilesField string `toml:"files_field"`
}

func parseDownloadConfig(cfg *Config) error {
	if cfg.DownloadConfig.SequencesLimit <= 0 {
		cfg.DownloadConfig.SequencesLimit = defaultSequencesLimit
	}
	if cfg.DownloadConfig.MaxConcurrency < 0 {
		cfg.DownloadConfig.MaxConcurrency = 0
	}
	return nil
}

func parseDRSConfig(cfg *Config) error {
	if cfg.DRSConfig.Protocol == "" {
		cfg.DRSConfig.Protocol = defaultDRSProtocol
	}
	if cfg.DRSConfig.ObjectPath == "" {
		cfg.DRSConfig.ObjectPath = defaultDRSObjectPath
	}
	if cfg.DRSConfig.RequestsPerSecond < 0 {
		cfg.DRSConfig.RequestsPerSecond = 0
	}
	if cfg.DRSConfig.RequestsPerSecond > 0 && cfg.DRSConfig.Burst <= 0 {
		cfg.DRSConfig.Burst = 1
	}
	return nil
}

func parseIndexConfig(cfg *Config) error {
	if cfg.IndexConfig.Index == "" {
		cfg.IndexConfig.Index = defaultIndexName
	}
	if cfg.IndexConfig.IDField == "" {
		cfg.IndexConfig.IDField = defaultIDField
	}
	if cfg.IndexConfig.FilesField == "" {
		cfg.IndexConfig.FilesField = defaultFilesField
	}
	return nil
}
