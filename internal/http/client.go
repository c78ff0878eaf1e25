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

package http

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/containerd/log"
	rhttp "github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/supercluster/sequence-archiver/config"
	"github.com/supercluster/sequence-archiver/version"
)

var userAgent = fmt.Sprintf("sequence-archiver/%s", version.Version)

// NewRetryableClient creates a retryable HTTP client which will automatically
// retry on non-fatal errors given a RetryableHTTPClientConfig.
func NewRetryableClient(cfg config.RetryableHTTPClientConfig) *rhttp.Client {
	rhttpClient := rhttp.NewClient()
	// Don't log every request
	rhttpClient.Logger = nil

	rhttpClient.RetryMax = cfg.MaxRetries
	rhttpClient.RetryWaitMin = time.Duration(cfg.MinWaitMsec) * time.Millisecond
	rhttpClient.RetryWaitMax = time.Duration(cfg.MaxWaitMsec) * time.Millisecond
	rhttpClient.Backoff = backoffStrategy
	rhttpClient.CheckRetry = retryStrategy
	rhttpClient.ErrorHandler = handleHTTPError

	rhttpClient.HTTPClient.Timeout = time.Duration(cfg.RequestTimeoutMsec) * time.Millisecond
	if t, ok := rhttpClient.HTTPClient.Transport.(*http.Transport); ok {
		t.DialContext = (&net.Dialer{
			Timeout: time.Duration(cfg.DialTimeoutMsec) * time.Millisecond,
		}).DialContext
		t.ResponseHeaderTimeout = time.Duration(cfg.ResponseHeaderTimeoutMsec) * time.Millisecond
	}

	return rhttpClient
}

// NewStreamingClient returns a client for downloads whose bodies are streamed to the caller.
// It shares the transport of base, never retries and has no overall request timeout, so a
// slow consumer does not cut off a download; the transport's dial and response header
// timeouts still bound each attempt.
func NewStreamingClient(base *rhttp.Client) *rhttp.Client {
	c := CloneRetryableClient(base)
	c.RetryMax = 0
	c.HTTPClient.Transport = base.HTTPClient.Transport
	c.HTTPClient.Timeout = 0
	return c
}

// CloneRetryableClient returns a clone of a given retryable client with the same set
// of retry policies and a new concrete http.Client.
func CloneRetryableClient(retryClient *rhttp.Client) *rhttp.Client {
	newRetryClient := rhttp.NewClient()

	newRetryClient.Logger = retryClient.Logger

	newRetryClient.RetryMax = retryClient.RetryMax
	newRetryClient.RetryWaitMin = retryClient.RetryWaitMin
	newRetryClient.RetryWaitMax = retryClient.RetryWaitMax
	newRetryClient.CheckRetry = retryClient.CheckRetry
	newRetryClient.Backoff = retryClient.Backoff
	newRetryClient.ErrorHandler = retryClient.ErrorHandler

	return newRetryClient
}

// NewRequest builds a retryable request carrying the service User-Agent.
func NewRequest(ctx context.Context, method, url string, body io.Reader) (*rhttp.Request, error) {
	var rawBody interface{}
	if body != nil {
		rawBody = body
	}
	req, err := rhttp.NewRequestWithContext(ctx, method, url, rawBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// jitter returns a number in the range duration to duration+(duration/divisor)-1, inclusive
func jitter(duration time.Duration, divisor int64) time.Duration {
	if int64(duration)/divisor <= 0 {
		return duration
	}
	return time.Duration(rand.Int64N(int64(duration)/divisor) + int64(duration))
}

// backoffStrategy extends retryablehttp's DefaultBackoff to add a random jitter so that
// many files of one batch don't hit a recovering host at the same instant.
func backoffStrategy(minDuration, maxDuration time.Duration, attemptNum int, resp *http.Response) time.Duration {
	delayTime := rhttp.DefaultBackoff(minDuration, maxDuration, attemptNum, resp)
	return jitter(delayTime, 8)
}

// retryStrategy extends retryablehttp's DefaultRetryPolicy to log the error and response when retrying.
// DefaultRetryPolicy retries whenever err is non-nil (except for some url errors) or if returned
// status code is 429 or 5xx (except 501)
func retryStrategy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	retry, err2 := rhttp.DefaultRetryPolicy(ctx, resp, err)
	if retry {
		fields := logrus.Fields{"error": RedactHTTPQueryValuesFromError(err)}
		if resp != nil {
			fields["status"] = resp.StatusCode
		}
		log.G(ctx).WithFields(fields).Debugf("retrying request")
	}
	return retry, RedactHTTPQueryValuesFromError(err2)
}

// handleHTTPError implements retryablehttp client's ErrorHandler. When the last attempt
// produced a response it is returned untouched so callers can report its status code;
// transport errors get their url redacted.
func handleHTTPError(resp *http.Response, err error, attempts int) (*http.Response, error) {
	if err == nil && resp != nil {
		return resp, nil
	}
	var (
		method = "unknown"
		url    = "unknown"
	)
	if resp != nil {
		Drain(resp.Body)
		if resp.Request != nil {
			method = resp.Request.Method
			if resp.Request.URL != nil {
				RedactHTTPQueryValuesFromURL(resp.Request.URL)
				url = resp.Request.URL.Redacted()
			}
		}
	}
	err = RedactHTTPQueryValuesFromError(err)
	return nil, fmt.Errorf("%s \"%s\": giving up request after %d attempt(s): %w", method, url, attempts, err)
}
