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

package drs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrMalformedPath        = errors.New("could not parse drs path")
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	ErrInvalidMetadata      = errors.New("invalid drs object metadata")
	ErrNoAccessMethods      = errors.New("no https access urls found")
	ErrAllCandidatesFailed  = errors.New("all access urls failed")
	ErrRequestFailed        = errors.New("request failed")
)

// StatusError is returned when a remote answered with anything but 200.
type StatusError struct {
	// URL is redacted.
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s from %s: %d %s", ErrUnexpectedStatusCode, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatusCode
}

// AllCandidatesFailedError aggregates the failure of every access url of one object.
// Errors are in candidate order. Error reports the first one.
type AllCandidatesFailedError struct {
	Name   string
	Errors []error
}

func (e *AllCandidatesFailedError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("%s for %q", ErrAllCandidatesFailed, e.Name)
	}
	return fmt.Sprintf("%s for %q: %v", ErrAllCandidatesFailed, e.Name, e.Errors[0])
}

func (e *AllCandidatesFailedError) Unwrap() []error {
	return e.Errors
}

func (e *AllCandidatesFailedError) Is(target error) bool {
	return target == ErrAllCandidatesFailed
}

// Detail lists every candidate failure, for logs.
func (e *AllCandidatesFailedError) Detail() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = fmt.Sprintf("[%d] %v", i, err)
	}
	return strings.Join(msgs, "; ")
}
