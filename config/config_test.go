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
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	tests := []struct {
		name     string
		expected any
		actual   any
	}{
		{
			name:     "address",
			expected: defaultAddress,
			actual:   cfg.Address,
		},
		{
			name:     "metrics network",
			expected: defaultMetricsNetwork,
			actual:   cfg.MetricsNetwork,
		},
		{
			name:     "sequences limit",
			expected: int(defaultSequencesLimit),
			actual:   cfg.DownloadConfig.SequencesLimit,
		},
		{
			name:     "max concurrency",
			expected: int64(0),
			actual:   cfg.DownloadConfig.MaxConcurrency,
		},
		{
			name:     "drs protocol",
			expected: defaultDRSProtocol,
			actual:   cfg.DRSConfig.Protocol,
		},
		{
			name:     "drs object path",
			expected: defaultDRSObjectPath,
			actual:   cfg.DRSConfig.ObjectPath,
		},
		{
			name:     "drs burst without rate",
			expected: 0,
			actual:   cfg.DRSConfig.Burst,
		},
		{
			name:     "index name",
			expected: defaultIndexName,
			actual:   cfg.IndexConfig.Index,
		},
		{
			name:     "index id field",
			expected: defaultIDField,
			actual:   cfg.IndexConfig.IDField,
		},
		{
			name:     "index files field",
			expected: defaultFilesField,
			actual:   cfg.IndexConfig.FilesField,
		},
		{
			name:     "http dial timeout",
			expected: int64(defaultDialTimeoutMsec),
			actual:   cfg.RetryableHTTPClientConfig.TimeoutConfig.DialTimeoutMsec,
		},
		{
			name:     "http header timeout",
			expected: int64(defaultResponseHeaderTimeoutMsec),
			actual:   cfg.RetryableHTTPClientConfig.TimeoutConfig.ResponseHeaderTimeoutMsec,
		},
		{
			name:     "http request timeout",
			expected: int64(defaultRequestTimeoutMsec),
			actual:   cfg.RetryableHTTPClientConfig.TimeoutConfig.RequestTimeoutMsec,
		},
		{
			name:     "http max retries",
			expected: int(defaultMaxRetries),
			actual:   cfg.RetryableHTTPClientConfig.RetryConfig.MaxRetries,
		},
		{
			name:     "http retry min wait",
			expected: int64(defaultMinWaitMsec),
			actual:   cfg.RetryableHTTPClientConfig.RetryConfig.MinWaitMsec,
		},
		{
			name:     "http retry max wait",
			expected: int64(defaultMaxWaitMsec),
			actual:   cfg.RetryableHTTPClientConfig.RetryConfig.MaxWaitMsec,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.expected != tc.actual {
				t.Fatalf("invalid default value. expected: %v. actual: %v", tc.expected, tc.actual)
			}
		})
	}
}

func TestNewConfigFromToml(t *testing.T) {
	const content = `
address = ":9000"
metrics_address = "127.0.0.1:9090"

[download]
sequences_limit = 25
max_concurrency = 8

[drs]
protocol = "http"
object_path = "/custom/objects/"
requests_per_second = 50.0

[index]
host = "http://es:9200"
index = "sequences"

[http]
max_retries = -1
request_timeout_msec = 5000
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := NewConfigFromToml(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	want := NewConfig()
	want.Address = ":9000"
	want.MetricsAddress = "127.0.0.1:9090"
	want.DownloadConfig.SequencesLimit = 25
	want.DownloadConfig.MaxConcurrency = 8
	want.DRSConfig.Protocol = "http"
	want.DRSConfig.ObjectPath = "/custom/objects/"
	want.DRSConfig.RequestsPerSecond = 50
	want.DRSConfig.Burst = 1
	want.IndexConfig.Host = "http://es:9200"
	want.IndexConfig.Index = "sequences"
	want.RetryableHTTPClientConfig.RetryConfig.MaxRetries = 0
	want.RetryableHTTPClientConfig.TimeoutConfig.RequestTimeoutMsec = 5000

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}
}

func TestNewConfigFromTomlMissingFile(t *testing.T) {
	if _, err := NewConfigFromToml(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected an error for a missing non-default config file")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvPort:           "3000",
		EnvSequencesLimit: "4",
		EnvDRSObjectPath:  "drs/objects",
		EnvIndexUser:      "elastic",
		EnvIndexPassword:  "secret",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := &Config{}
	if err := applyEnv(cfg, lookup); err != nil {
		t.Fatal(err)
	}
	parseConfig(cfg)

	if cfg.Address != ":3000" {
		t.Fatalf("unexpected address %q", cfg.Address)
	}
	if cfg.DownloadConfig.SequencesLimit != 4 {
		t.Fatalf("unexpected sequences limit %d", cfg.DownloadConfig.SequencesLimit)
	}
	if cfg.DRSConfig.ObjectPath != "drs/objects" || cfg.DRSConfig.Protocol != defaultDRSProtocol {
		t.Fatalf("unexpected drs config %+v", cfg.DRSConfig)
	}
	if cfg.IndexConfig.User != "elastic" || cfg.IndexConfig.Password != "secret" {
		t.Fatalf("unexpected index credentials %+v", cfg.IndexConfig)
	}

	env[EnvSequencesLimit] = "ten"
	if err := applyEnv(&Config{}, lookup); err == nil {
		t.Fatal("expected an error for a non-numeric limit")
	}
}
