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

// Package service exposes sequence file downloads over HTTP.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/supercluster/sequence-archiver/archive"
	"github.com/supercluster/sequence-archiver/download"
	"github.com/supercluster/sequence-archiver/drs"
	"github.com/supercluster/sequence-archiver/tracing"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DownloadPath = "/api/download/sequences"
	HealthPath   = "/api/health"

	maxRequestBytes   = 1 << 20
	archiveTimeFormat = "2006-01-02T15:04"
	requestIDHeader   = "X-Request-Id"

	// statusClientClosedRequest is nginx's status for a client that went away
	// before the response was ready.
	statusClientClosedRequest = 499
)

const (
	msgInvalidBody      = "Invalid request body."
	msgNoFilesFound     = "No files found."
	msgIndexUnavailable = "Failed to look up sequences."
	msgRetrievalFailed  = "Failed to retrieve sequence files."
	msgCancelled        = "Request cancelled."
	msgHealthy          = "API Server is running..."
)

// Retriever gathers the files of a batch of sequences.
type Retriever interface {
	Retrieve(ctx context.Context, ids []string) (download.SequenceResults, error)
}

type Option func(*options)

type options struct {
	now         func() time.Time
	archiveOpts []archive.Option
}

// WithClock sets the clock used to name archives.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithArchiveOptions passes opts to every archive write.
func WithArchiveOptions(opts ...archive.Option) Option {
	return func(o *options) {
		o.archiveOpts = append(o.archiveOpts, opts...)
	}
}

// Handler serves the download and health endpoints.
type Handler struct {
	retriever Retriever
	opts      options
	mux       *http.ServeMux
}

// NewHandler returns a Handler downloading through r.
func NewHandler(r Retriever, opts ...Option) *Handler {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	h := &Handler{retriever: r, opts: o, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST "+DownloadPath, h.download)
	h.mux.HandleFunc("GET "+HealthPath, h.health)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := xid.New().String()
	w.Header().Set(requestIDHeader, id)
	ctx := log.WithLogger(r.Context(), log.G(r.Context()).WithField("request_id", id))
	log.G(ctx).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"remote": r.RemoteAddr,
	}).Debug("handling request")
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

type downloadRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Tracer().Start(r.Context(), "service.download")
	defer span.End()

	var req downloadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		log.G(ctx).WithError(err).Debug("invalid request body")
		writeText(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	span.SetAttributes(attribute.Int("service.ids", len(req.IDs)))

	results, err := h.retriever.Retrieve(ctx, req.IDs)
	if err != nil {
		span.RecordError(err)
		h.writeError(ctx, w, err)
		return
	}

	filename := fmt.Sprintf("sequence_files_%s.zip", h.opts.now().UTC().Format(archiveTimeFormat))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
	w.WriteHeader(http.StatusOK)

	stats, err := archive.Write(ctx, w, results, h.opts.archiveOpts...)
	if err != nil {
		span.RecordError(err)
		log.G(ctx).WithError(err).Error("aborting archive stream")
		// The status line is already sent; only a broken connection tells the
		// client that the archive is incomplete.
		panic(http.ErrAbortHandler)
	}
	log.G(ctx).WithFields(logrus.Fields{
		"archive": filename,
		"folders": stats.Folders,
		"files":   stats.Files,
		"bytes":   stats.Bytes,
	}).Info("sent archive")
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": msgHealthy})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	lg := log.G(ctx).WithError(err)
	var candidates *drs.AllCandidatesFailedError
	if errors.As(err, &candidates) {
		lg = lg.WithField("candidates", candidates.Detail())
	}

	switch {
	case errdefs.IsInvalidArgument(err):
		lg.Debug("rejected request")
		writeText(w, http.StatusBadRequest, err.Error())
	case errdefs.IsNotFound(err):
		lg.Info("no files found")
		writeJSON(w, http.StatusNotFound, errorBody(msgNoFilesFound))
	case errors.Is(err, context.Canceled):
		lg.Info("request cancelled")
		writeJSON(w, statusClientClosedRequest, errorBody(msgCancelled))
	case errors.Is(err, download.ErrIndexLookup):
		lg.Error("sequence lookup failed")
		writeJSON(w, http.StatusBadGateway, errorBody(msgIndexUnavailable))
	default:
		lg.Error("sequence retrieval failed")
		writeJSON(w, retrievalStatus(err), errorBody(retrievalMessage(err)))
	}
}

// retrievalStatus reports upstream failures as 502 and everything else as 500.
func retrievalStatus(err error) int {
	for _, upstream := range []error{
		drs.ErrUnexpectedStatusCode,
		drs.ErrAllCandidatesFailed,
		drs.ErrNoAccessMethods,
		drs.ErrInvalidMetadata,
		drs.ErrRequestFailed,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, upstream) {
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

func retrievalMessage(err error) string {
	var ferr *download.FileError
	if errors.As(err, &ferr) {
		return fmt.Sprintf("Failed to retrieve file %s of sequence %s.", ferr.FileID, ferr.SequenceID)
	}
	return msgRetrievalFailed
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	io.WriteString(w, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
