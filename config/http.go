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

// RetryConfig represents the settings for retries in a retryable http client.
type RetryConfig struct {
	// MaxRetries is the maximum number of retries before giving up on a retryable request.
	// This does not include the initial request so the total number of attempts will be MaxRetries + 1.
	// A negative value disables retries.
	MaxRetries int `toml:"max_retries"`
	// MinWait is the minimum wait time between attempts. The actual wait time is governed by the BackoffStrategy,
	// but the wait time will never be shorter than this duration.
	MinWaitMsec int64 `toml:"min_wait_msec"`
	// MaxWait is the maximum wait time between attempts. The actual wait time is governed by the BackoffStrategy,
	// but the wait time will never be longer than this duration.
	MaxWaitMsec int64 `toml:"max_wait_msec"`
}

// TimeoutConfig represents the settings for timeout at various points in a request lifecycle in a retryable http client.
type TimeoutConfig struct {
	// DialTimeout is the maximum duration that connection can take before a request attempt is timed out.
	DialTimeoutMsec int64 `toml:"dial_timeout_msec"`
	// ResponseHeaderTimeout is the maximum duration waiting for response headers before a request attempt is timed out.
	// It bounds every access url attempt in a race.
	ResponseHeaderTimeoutMsec int64 `toml:"response_header_timeout_msec"`
	// RequestTimeout is the maximum duration before the entire request attempt is timed out. It applies to
	// index and metadata requests only; file downloads are streamed and bounded by the caller instead.
	RequestTimeoutMsec int64 `toml:"request_timeout_msec"`
}

// RetryableHTTPClientConfig is the complete config for a retryable http client
type RetryableHTTPClientConfig struct {
	TimeoutConfig
	RetryConfig
}

func parseRetryableHTTPClientConfig(cfg *Config) error {
	if cfg.RetryableHTTPClientConfig.TimeoutConfig.DialTimeoutMsec == 0 {
		cfg.RetryableHTTPClientConfig.TimeoutConfig.DialTimeoutMsec = defaultDialTimeoutMsec
	}
	if cfg.RetryableHTTPClientConfig.TimeoutConfig.ResponseHeaderTimeoutMsec == 0 {
		cfg.RetryableHTTPClientConfig.TimeoutConfig.ResponseHeaderTimeoutMsec = defaultResponseHeaderTimeoutMsec
	}
	if cfg.RetryableHTTPClientConfig.TimeoutConfig.RequestTimeoutMsec == 0 {
		cfg.RetryableHTTPClientConfig.TimeoutConfig.RequestTimeoutMsec = defaultRequestTimeoutMsec
	}
	switch {
	case cfg.RetryableHTTPClientConfig.RetryConfig.MaxRetries == 0:
		cfg.RetryableHTTPClientConfig.RetryConfig.MaxRetries = defaultMaxRetries
	case cfg.RetryableHTTPClientConfig.RetryConfig.MaxRetries < 0:
		cfg.RetryableHTTPClientConfig.RetryConfig.MaxRetries = 0
	}
	if cfg.RetryableHTTPClientConfig.RetryConfig.MinWaitMsec == 0 {
		cfg.RetryableHTTPClientConfig.RetryConfig.MinWaitMsec = defaultMinWaitMsec
	}
	if cfg.RetryableHTTPClientConfig.RetryConfig.MaxWaitMsec == 0 {
		cfg.RetryableHTTPClientConfig.RetryConfig.MaxWaitMsec = defaultMaxWaitMsec
	}
	return nil
}
