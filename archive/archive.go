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

// Package archive streams retrieved sequence files into a zip archive.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/containerd/log"
	"github.com/klauspost/compress/zip"
	"github.com/supercluster/sequence-archiver/download"
	"github.com/supercluster/sequence-archiver/drs"
	"github.com/supercluster/sequence-archiver/metrics"
	"github.com/supercluster/sequence-archiver/tracing"
	"go.opentelemetry.io/otel/attribute"
)

var ErrArchiveWrite = errors.New("failed to write archive")

const (
	defaultFileName   = "file"
	defaultFolderName = "sequence"
)

// Stats describes a written archive.
type Stats struct {
	Folders int
	Files   int
	// Bytes is the uncompressed size of all file entries.
	Bytes int64
}

type options struct {
	modTime       time.Time
	method        uint16
	flushInterval int
}

// Option configures Write.
type Option func(*options)

// WithModTime sets the modification time of every entry.
func WithModTime(t time.Time) Option {
	return func(o *options) {
		o.modTime = t
	}
}

// WithMethod sets the compression method of file entries, zip.Deflate by default.
func WithMethod(method uint16) Option {
	return func(o *options) {
		o.method = method
	}
}

// WithFlushInterval flushes the destination after every n file entries when it
// implements http.Flusher. n <= 0 disables flushing.
func WithFlushInterval(n int) Option {
	return func(o *options) {
		o.flushInterval = n
	}
}

// Write streams results to w as a zip archive with one folder per sequence,
// in the order given, and every file of a sequence inside its folder.
// Every body in results is closed by the time Write returns.
func Write(ctx context.Context, w io.Writer, results []download.SequenceResult, opts ...Option) (stats Stats, err error) {
	o := options{
		modTime: time.Now(),
		method:  zip.Deflate,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := tracing.Tracer().Start(ctx, "archive.Write")
	start := time.Now()
	defer func() {
		metrics.Observe(metrics.ArchiveWrite, start, err)
		span.SetAttributes(
			attribute.Int("archive.folders", stats.Folders),
			attribute.Int("archive.files", stats.Files),
			attribute.Int64("archive.bytes", stats.Bytes),
		)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	aw := &writer{
		ctx:     ctx,
		zw:      zip.NewWriter(w),
		opts:    o,
		flusher: flusherOf(w),
	}
	if err := aw.write(results, &stats); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrArchiveWrite, err)
	}
	return stats, nil
}

type writer struct {
	ctx     context.Context
	zw      *zip.Writer
	opts    options
	flusher http.Flusher
	entries int
}

func flusherOf(w io.Writer) http.Flusher {
	if f, ok := w.(http.Flusher); ok {
		return f
	}
	return nil
}

func (aw *writer) write(results []download.SequenceResult, stats *Stats) error {
	for i, r := range results {
		if err := aw.ctx.Err(); err != nil {
			closeFrom(results, i, 0)
			return err
		}
		folder := sanitizeFolder(r.SequenceID) + "/"
		if err := aw.createFolder(folder); err != nil {
			closeFrom(results, i, 0)
			return err
		}
		stats.Folders++

		used := make(map[string]struct{}, len(r.Files))
		for j, f := range r.Files {
			name := uniqueName(sanitizeName(f.Name), used)
			n, err := aw.writeFile(folder+name, f)
			stats.Bytes += n
			if err != nil {
				closeFrom(results, i, j+1)
				return fmt.Errorf("%s%s: %w", folder, name, err)
			}
			stats.Files++
			log.G(aw.ctx).WithField("entry", folder+name).WithField("bytes", n).Trace("wrote archive entry")
		}
	}
	return aw.zw.Close()
}

func (aw *writer) createFolder(name string) error {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: aw.opts.modTime,
	}
	hdr.SetMode(fs.ModeDir | 0o755)
	_, err := aw.zw.CreateHeader(hdr)
	return err
}

// writeFile copies the body of f into a new entry and closes it.
func (aw *writer) writeFile(name string, f drs.RetrievedFile) (int64, error) {
	defer f.Body.Close()

	hdr := &zip.FileHeader{
		Name:     name,
		Method:   aw.opts.method,
		Modified: aw.opts.modTime,
	}
	hdr.SetMode(0o644)
	ew, err := aw.zw.CreateHeader(hdr)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(ew, &ctxReader{ctx: aw.ctx, r: f.Body})
	metrics.AddBytesCount(metrics.ArchiveEntry, n)
	if err != nil {
		return n, err
	}
	metrics.IncOperationCount(metrics.ArchiveEntry)

	aw.entries++
	if aw.flusher != nil && aw.opts.flushInterval > 0 && aw.entries%aw.opts.flushInterval == 0 {
		if err := aw.zw.Flush(); err != nil {
			return n, err
		}
		aw.flusher.Flush()
	}
	return n, nil
}

// closeFrom closes the bodies of results starting at file j of sequence i.
func closeFrom(results []download.SequenceResult, i, j int) {
	for ; i < len(results); i++ {
		for ; j < len(results[i].Files); j++ {
			if b := results[i].Files[j].Body; b != nil {
				b.Close()
			}
		}
		j = 0
	}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func sanitizeFolder(id string) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSpace(id))
	switch name {
	case "", ".", "..":
		return defaultFolderName
	}
	return name
}

// sanitizeName keeps the last element of name so no entry escapes its folder.
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return defaultFileName
	}
	return name
}

// uniqueName appends " (n)" before the extension of name until it is not in used.
func uniqueName(name string, used map[string]struct{}) string {
	candidate := name
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		if _, ok := used[candidate]; !ok {
			break
		}
		candidate = fmt.Sprintf("%s (%d)%s", base, n, ext)
	}
	used[candidate] = struct{}{}
	return candidate
}
