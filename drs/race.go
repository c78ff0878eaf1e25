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
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/containerd/log"
	archiverhttp "github.com/supercluster/sequence-archiver/internal/http"
	"github.com/supercluster/sequence-archiver/metrics"
	"github.com/supercluster/sequence-archiver/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type attempt struct {
	idx  int
	resp *http.Response
	err  error
}

// Race requests every access url of md at once and returns the body of the
// first one answering 200. The other attempts are cancelled and their results
// discarded. If every attempt fails the error is an *AllCandidatesFailedError.
//
// Once Race returns a file, cancelling ctx no longer affects its body; closing
// the body releases the underlying request.
func (c *Client) Race(ctx context.Context, md ObjectMetadata) (_ RetrievedFile, err error) {
	if len(md.AccessMethods) == 0 {
		return RetrievedFile{}, fmt.Errorf("%w for object %q", ErrNoAccessMethods, md.Name)
	}

	ctx, span := tracing.Tracer().Start(ctx, "drs.Race")
	span.SetAttributes(
		attribute.String("drs.object_name", md.Name),
		attribute.Int("drs.candidates", len(md.AccessMethods)),
	)
	start := time.Now()
	defer func() {
		metrics.Observe(metrics.AccessRace, start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Attempts live in a context that only follows ctx until the race is
	// settled, so the winning body outlives a later cancellation of ctx.
	raceCtx, cancelRace := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancelRace)

	n := len(md.AccessMethods)
	results := make(chan attempt, n)
	cancels := make([]context.CancelFunc, n)
	for i, m := range md.AccessMethods {
		attemptCtx, cancel := context.WithCancel(raceCtx)
		cancels[i] = cancel
		go func() {
			resp, err := c.open(attemptCtx, m.AccessURL)
			results <- attempt{idx: i, resp: resp, err: err}
		}()
	}

	errs := make([]error, n)
	for received := 0; received < n; received++ {
		var a attempt
		select {
		case a = <-results:
		case <-ctx.Done():
			stop()
			cancelRace()
			go discard(results, n-received)
			return RetrievedFile{}, ctx.Err()
		}
		if a.err != nil {
			errs[a.idx] = a.err
			cancels[a.idx]()
			continue
		}

		stop()
		for i, cancel := range cancels {
			if i != a.idx {
				cancel()
			}
		}
		go discard(results, n-received-1)

		source := archiverhttp.RedactHTTPQueryValuesFromString(md.AccessMethods[a.idx].AccessURL.URL)
		log.G(ctx).WithField("name", md.Name).WithField("source", source).Debug("access url won race")
		return RetrievedFile{
			Name: md.Name,
			Body: &raceBody{
				ReadCloser: a.resp.Body,
				release: func() {
					cancels[a.idx]()
					cancelRace()
				},
			},
			Source: source,
		}, nil
	}

	stop()
	cancelRace()
	return RetrievedFile{}, &AllCandidatesFailedError{Name: md.Name, Errors: errs}
}

// open issues one GET on an access url. Only 200 counts as success.
func (c *Client) open(ctx context.Context, au AccessURL) (*http.Response, error) {
	start := time.Now()
	redacted := archiverhttp.RedactHTTPQueryValuesFromString(au.URL)
	req, err := archiverhttp.NewRequest(ctx, http.MethodGet, au.URL, nil)
	if err != nil {
		metrics.Observe(metrics.AccessAttempt, start, err)
		return nil, fmt.Errorf("%w for %s: %w", ErrRequestFailed, redacted, err)
	}
	for _, h := range au.Headers {
		if k, v, ok := strings.Cut(h, ":"); ok {
			req.Header.Set(strings.TrimSpace(k), strings.TrimSpace(v))
		}
	}
	resp, err := c.accessClient.Do(req)
	if err != nil {
		err = fmt.Errorf("%w for %s: %w", ErrRequestFailed, redacted, archiverhttp.RedactHTTPQueryValuesFromError(err))
		metrics.Observe(metrics.AccessAttempt, start, err)
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		archiverhttp.Drain(resp.Body)
		err := &StatusError{URL: redacted, StatusCode: resp.StatusCode}
		metrics.Observe(metrics.AccessAttempt, start, err)
		return nil, err
	}
	metrics.Observe(metrics.AccessAttempt, start, nil)
	return resp, nil
}

// discard waits for the remaining n attempts and releases any response that
// arrived after the race was settled.
func discard(results <-chan attempt, n int) {
	for i := 0; i < n; i++ {
		if a := <-results; a.resp != nil {
			archiverhttp.Drain(a.resp.Body)
		}
	}
}

// raceBody releases the winning attempt's context once the body is closed.
type raceBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *raceBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
