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
	"errors"
	"io"
	"net/url"
)

// RedactHTTPQueryValuesFromError is a log utility to parse an error as a URL error and redact
// HTTP query values to prevent leaking sensitive information like signed access url tokens.
func RedactHTTPQueryValuesFromError(err error) error {
	var urlErr *url.Error

	if err != nil && errors.As(err, &urlErr) {
		u, urlParseErr := url.Parse(urlErr.URL)
		if urlParseErr == nil {
			RedactHTTPQueryValuesFromURL(u)
			urlErr.URL = u.Redacted()
			return urlErr
		}
	}

	return err
}

// RedactHTTPQueryValuesFromURL redacts HTTP query values from a URL.
func RedactHTTPQueryValuesFromURL(u *url.URL) {
	if u != nil {
		if query := u.Query(); len(query) > 0 {
			for k := range query {
				query.Set(k, "redacted")
			}
			u.RawQuery = query.Encode()
		}
	}
}

// RedactHTTPQueryValuesFromString redacts HTTP query values and user info from a string.
func RedactHTTPQueryValuesFromString(surl string) string {
	u, err := url.Parse(surl)
	if err == nil {
		RedactHTTPQueryValuesFromURL(u)
		return u.Redacted()
	}
	return surl
}

// RedactURLs applies RedactHTTPQueryValuesFromString to every url, for logging candidate lists.
func RedactURLs(urls []string) []string {
	redacted := make([]string, len(urls))
	for i, u := range urls {
		redacted[i] = RedactHTTPQueryValuesFromString(u)
	}
	return redacted
}

// Drain tries to read and close the response body so the connection can be reused.
// Since it consumes the response body, this should only be used when the response body
// is no longer needed.
func Drain(body io.ReadCloser) {
	if body == nil {
		return
	}
	defer body.Close()

	// Bodies larger than the limit are cheaper to drop with the connection.
	const responseReadLimit = int64(4096)
	_, _ = io.Copy(io.Discard, io.LimitReader(body, responseReadLimit))
}
