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

package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/containerd/log"
	rhttp "github.com/hashicorp/go-retryablehttp"
	"github.com/supercluster/sequence-archiver/config"
	archiverhttp "github.com/supercluster/sequence-archiver/internal/http"
	"github.com/supercluster/sequence-archiver/metrics"
	"github.com/supercluster/sequence-archiver/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Elasticsearch looks up sequence manifests with a terms query against an
// Elasticsearch index.
type Elasticsearch struct {
	cfg    config.IndexConfig
	client *rhttp.Client
}

// NewElasticsearch returns an Index backed by the search endpoint of cfg.Host.
func NewElasticsearch(cfg config.IndexConfig, client *rhttp.Client) (*Elasticsearch, error) {
	if cfg.Host == "" {
		return nil, ErrMissingHost
	}
	return &Elasticsearch{cfg: cfg, client: client}, nil
}

type searchRequest struct {
	Size  int            `json:"size"`
	Query map[string]any `json:"query"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string                     `json:"_id"`
			Source map[string]json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *Elasticsearch) newRequest(ctx context.Context, method, url string, body []byte) (*rhttp.Request, error) {
	var req *rhttp.Request
	var err error
	if body != nil {
		req, err = archiverhttp.NewRequest(ctx, method, url, bytes.NewReader(body))
	} else {
		req, err = archiverhttp.NewRequest(ctx, method, url, nil)
	}
	if err != nil {
		return nil, err
	}
	if e.cfg.User != "" && e.cfg.Password != "" {
		req.SetBasicAuth(e.cfg.User, e.cfg.Password)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Ping checks that the index host answers.
func (e *Elasticsearch) Ping(ctx context.Context) error {
	req, err := e.newRequest(ctx, http.MethodHead, strings.TrimRight(e.cfg.Host, "/")+"/", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLookupFailed, archiverhttp.RedactHTTPQueryValuesFromError(err))
	}
	archiverhttp.Drain(resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: ping returned %d", ErrLookupFailed, resp.StatusCode)
	}
	return nil
}

// Lookup implements Index.
func (e *Elasticsearch) Lookup(ctx context.Context, ids []string) (_ map[string][]FileRecord, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "index.Lookup")
	span.SetAttributes(attribute.Int("index.ids", len(ids)))
	start := time.Now()
	defer func() {
		metrics.Observe(metrics.IndexLookup, start, err)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	unique := dedupe(ids)
	body, err := json.Marshal(searchRequest{
		Size: len(unique),
		Query: map[string]any{
			"bool": map[string]any{
				"filter": map[string]any{
					"terms": map[string]any{e.cfg.IDField: unique},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	url := fmt.Sprintf("%s/%s/_search", strings.TrimRight(e.cfg.Host, "/"), e.cfg.Index)
	req, err := e.newRequest(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, archiverhttp.RedactHTTPQueryValuesFromError(err))
	}
	defer archiverhttp.Drain(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: search returned %d", ErrLookupFailed, resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("%w: decoding search response: %w", ErrLookupFailed, err)
	}

	out := make(map[string][]FileRecord, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		id := hit.ID
		if raw, ok := hit.Source[e.cfg.IDField]; ok {
			var sourceID string
			if json.Unmarshal(raw, &sourceID) == nil && sourceID != "" {
				id = sourceID
			}
		}
		var files []FileRecord
		if raw, ok := hit.Source[e.cfg.FilesField]; ok {
			if err := json.Unmarshal(raw, &files); err != nil {
				return nil, fmt.Errorf("%w: decoding files of %q: %w", ErrLookupFailed, id, err)
			}
		}
		out[id] = append(out[id], files...)
	}
	log.G(ctx).WithField("requested", len(unique)).WithField("found", len(out)).Debug("looked up sequence manifests")
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
