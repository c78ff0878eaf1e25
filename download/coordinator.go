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

// Package download gathers the files of a batch of sequences.
package download

import (
	"context"
	"fmt"
	"time"

	"github.com/containerd/log"
	"github.com/sirupsen/logrus"
	"github.com/supercluster/sequence-archiver/config"
	"github.com/supercluster/sequence-archiver/drs"
	"github.com/supercluster/sequence-archiver/index"
	archiverhttp "github.com/supercluster/sequence-archiver/internal/http"
	"github.com/supercluster/sequence-archiver/metrics"
	"github.com/supercluster/sequence-archiver/tracing"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Resolver turns a drs path into an open download.
type Resolver interface {
	ObjectURL(drsPath string) (string, error)
	FetchMetadata(ctx context.Context, objectURL string) (drs.ObjectMetadata, error)
	Race(ctx context.Context, md drs.ObjectMetadata) (drs.RetrievedFile, error)
}

// FailurePolicy decides what happens to a batch when one of its files fails.
type FailurePolicy int

const (
	// FailFast aborts the whole batch on the first failed file.
	FailFast FailurePolicy = iota
)

// SequenceResult holds the retrieved files of one sequence in manifest order.
type SequenceResult struct {
	SequenceID string
	Files      []drs.RetrievedFile
}

// SequenceResults is the outcome of a batch in request order.
type SequenceResults []SequenceResult

// Close closes every body that has not been handed to a consumer yet.
func (rs SequenceResults) Close() {
	for i := range rs {
		for j := range rs[i].Files {
			if b := rs[i].Files[j].Body; b != nil {
				b.Close()
				rs[i].Files[j].Body = nil
			}
		}
	}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxConcurrency bounds the number of files fetched at once. n <= 0 means unbounded.
func WithMaxConcurrency(n int64) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(n)
		} else {
			c.sem = nil
		}
	}
}

// WithFailurePolicy sets the batch failure policy.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(c *Coordinator) {
		c.policy = p
	}
}

// Coordinator retrieves every file of a batch of sequences.
type Coordinator struct {
	index    index.Index
	resolver Resolver
	limit    int
	sem      *semaphore.Weighted
	policy   FailurePolicy
}

// NewCoordinator returns a Coordinator reading manifests from idx and files through r.
func NewCoordinator(idx index.Index, r Resolver, cfg config.DownloadConfig, opts ...Option) *Coordinator {
	c := &Coordinator{
		index:    idx,
		resolver: r,
		limit:    cfg.SequencesLimit,
		policy:   FailFast,
	}
	WithMaxConcurrency(cfg.MaxConcurrency)(c)
	for _, o := range opts {
		o(c)
	}
	return c
}

// Validate checks that a batch holds between 1 and max ids.
func Validate(ids []string, max int) error {
	if len(ids) == 0 || len(ids) > max {
		return &ValidationError{Count: len(ids), Max: max}
	}
	return nil
}

// Retrieve fetches every file of every id concurrently and returns one result
// per id in request order. Any failed file fails the batch and every body
// opened so far is closed. The caller owns the bodies of a successful result.
func (c *Coordinator) Retrieve(ctx context.Context, ids []string) (_ SequenceResults, err error) {
	if err := Validate(ids, c.limit); err != nil {
		return nil, err
	}

	ctx, span := tracing.Tracer().Start(ctx, "download.Retrieve")
	span.SetAttributes(attribute.Int("download.sequences", len(ids)))
	start := time.Now()
	defer func() {
		metrics.Observe(metrics.DownloadRequest, start, err)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	manifests, err := c.index.Lookup(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexLookup, err)
	}

	results := make(SequenceResults, len(ids))
	total := 0
	for i, id := range ids {
		records := manifests[id]
		results[i] = SequenceResult{SequenceID: id, Files: make([]drs.RetrievedFile, len(records))}
		total += len(records)
	}
	if total == 0 {
		return nil, ErrNoFilesFound
	}
	span.SetAttributes(attribute.Int("download.files", total))
	log.G(ctx).WithField("sequences", len(ids)).WithField("files", total).Debug("retrieving batch")

	eg, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		for j, rec := range manifests[id] {
			eg.Go(func() error {
				if c.sem != nil {
					if err := c.sem.Acquire(gctx, 1); err != nil {
						return &FileError{SequenceID: id, FileID: rec.FileID, Err: err}
					}
					defer c.sem.Release(1)
				}
				f, err := c.fetch(gctx, id, rec)
				if err != nil {
					return &FileError{SequenceID: id, FileID: rec.FileID, Err: err}
				}
				results[i].Files[j] = f
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		results.Close()
		return nil, err
	}
	return results, nil
}

func (c *Coordinator) fetch(ctx context.Context, sequenceID string, rec index.FileRecord) (drs.RetrievedFile, error) {
	lg := log.G(ctx).WithFields(logrus.Fields{
		"sequence_id": sequenceID,
		"file_id":     rec.FileID,
	})
	if rec.DRSFilePath == nil || *rec.DRSFilePath == "" {
		err := fmt.Errorf("%w: file has no drs path", drs.ErrMalformedPath)
		lg.WithError(err).Error("failed to resolve file")
		return drs.RetrievedFile{}, err
	}
	objectURL, err := c.resolver.ObjectURL(*rec.DRSFilePath)
	if err != nil {
		lg.WithError(err).Error("failed to resolve file")
		return drs.RetrievedFile{}, err
	}
	lg = lg.WithField("object_url", archiverhttp.RedactHTTPQueryValuesFromString(objectURL))

	md, err := c.resolver.FetchMetadata(ctx, objectURL)
	if err != nil {
		if ctx.Err() == nil {
			lg.WithError(err).Error("failed to fetch object metadata")
		}
		return drs.RetrievedFile{}, err
	}
	f, err := c.resolver.Race(ctx, md)
	if err != nil {
		if ctx.Err() == nil {
			lg.WithError(err).WithField("candidates", archiverhttp.RedactURLs(md.URLs())).Error("failed to download file")
		}
		return drs.RetrievedFile{}, err
	}
	lg.WithField("source", f.Source).Debug("retrieved file")
	return f, nil
}
