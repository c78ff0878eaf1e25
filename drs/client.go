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
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/containerd/log"
	rhttp "github.com/hashicorp/go-retryablehttp"
	"github.com/supercluster/sequence-archiver/config"
	archiverhttp "github.com/supercluster/sequence-archiver/internal/http"
	"github.com/supercluster/sequence-archiver/metrics"
	"github.com/supercluster/sequence-archiver/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

// Client resolves DRS objects and downloads their bytes.
type Client struct {
	cfg            config.DRSConfig
	metadataClient *rhttp.Client
	accessClient   *rhttp.Client
	limiter        *rate.Limiter
}

type Option func(*Client)

// WithAccessClient sets the client used to download from access urls.
// By default a non-retrying streaming clone of the metadata client is used.
func WithAccessClient(c *rhttp.Client) Option {
	return func(dc *Client) {
		dc.accessClient = c
	}
}

// WithLimiter bounds the rate of metadata requests, overriding the configured rate.
func WithLimiter(l *rate.Limiter) Option {
	return func(dc *Client) {
		dc.limiter = l
	}
}

// NewClient returns a DRS client. metadataClient is used for object metadata
// requests and may retry; downloads never retry.
func NewClient(cfg config.DRSConfig, metadataClient *rhttp.Client, opts ...Option) *Client {
	c := &Client{
		cfg:            cfg,
		metadataClient: metadataClient,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}
	for _, o := range opts {
		o(c)
	}
	if c.accessClient == nil {
		c.accessClient = archiverhttp.NewStreamingClient(metadataClient)
	}
	return c
}

// ObjectURL builds the object endpoint url for a drs file path using the client's config.
func (c *Client) ObjectURL(drsPath string) (string, error) {
	return ObjectURL(c.cfg, drsPath)
}

// FetchMetadata fetches the object at objectURL and returns its name and https access methods.
func (c *Client) FetchMetadata(ctx context.Context, objectURL string) (_ ObjectMetadata, err error) {
	redacted := archiverhttp.RedactHTTPQueryValuesFromString(objectURL)
	ctx, span := tracing.Tracer().Start(ctx, "drs.FetchMetadata")
	span.SetAttributes(attribute.String("drs.object_url", redacted))
	start := time.Now()
	defer func() {
		metrics.Observe(metrics.DRSMetadata, start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return ObjectMetadata{}, err
		}
	}

	req, err := archiverhttp.NewRequest(ctx, http.MethodGet, objectURL, nil)
	if err != nil {
		return ObjectMetadata{}, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.metadataClient.Do(req)
	if err != nil {
		return ObjectMetadata{}, fmt.Errorf("%w: %w", ErrRequestFailed, archiverhttp.RedactHTTPQueryValuesFromError(err))
	}
	defer archiverhttp.Drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return ObjectMetadata{}, &StatusError{URL: redacted, StatusCode: resp.StatusCode}
	}

	var obj objectResponse
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return ObjectMetadata{}, fmt.Errorf("%w from %s: %w", ErrInvalidMetadata, redacted, err)
	}

	md := ObjectMetadata{
		Name:          obj.Name,
		AccessMethods: filterHTTPS(obj.AccessMethods),
	}
	if md.Name == "" {
		// Fall back to the object id so the archive entry still gets a name.
		md.Name = path.Base(req.URL.Path)
	}
	if len(md.AccessMethods) == 0 {
		return ObjectMetadata{}, fmt.Errorf("%w for object %q (%s)", ErrNoAccessMethods, md.Name, redacted)
	}
	log.G(ctx).WithField("name", md.Name).WithField("candidates", len(md.AccessMethods)).Debug("resolved drs object")
	return md, nil
}

// filterHTTPS keeps the https access methods that carry a url, preserving order.
func filterHTTPS(methods []AccessMethod) []AccessMethod {
	var out []AccessMethod
	for _, m := range methods {
		if m.Type == AccessTypeHTTPS && m.AccessURL.URL != "" {
			out = append(out, m)
		}
	}
	return out
}
