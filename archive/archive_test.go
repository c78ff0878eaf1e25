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

package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"
	"github.com/supercluster/sequence-archiver/download"
	"github.com/supercluster/sequence-archiver/drs"
	"github.com/supercluster/sequence-archiver/internal/testutil"
)

type entry struct {
	Name string
	Dir  bool
	Data string
}

func file(name, data string) (drs.RetrievedFile, *testutil.TrackedBody) {
	b := testutil.NewTrackedBody([]byte(data))
	return drs.RetrievedFile{Name: name, Body: b}, b
}

func readArchive(t *testing.T, data []byte) []entry {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	var entries []entry
	for _, f := range zr.File {
		e := entry{Name: f.Name, Dir: f.FileInfo().IsDir()}
		if !e.Dir {
			rc, err := f.Open()
			if err != nil {
				t.Fatal(err)
			}
			b, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				t.Fatal(err)
			}
			e.Data = string(b)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestWrite(t *testing.T) {
	a1, b1 := file("reads.fastq", "ACGT")
	a2, b2 := file("consensus.fasta", ">A\nACGTACGT\n")
	sample := string(testutil.NewTestRand(t).RandomSequence("C", 1<<16))
	c1, b3 := file("sample.fasta", sample)
	results := []download.SequenceResult{
		{SequenceID: "A", Files: []drs.RetrievedFile{a1, a2}},
		{SequenceID: "B"},
		{SequenceID: "C", Files: []drs.RetrievedFile{c1}},
	}

	modTime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	stats, err := Write(testutil.LogContext(t), &buf, results, WithModTime(modTime))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := []entry{
		{Name: "A/", Dir: true},
		{Name: "A/reads.fastq", Data: "ACGT"},
		{Name: "A/consensus.fasta", Data: ">A\nACGTACGT\n"},
		{Name: "B/", Dir: true},
		{Name: "C/", Dir: true},
		{Name: "C/sample.fasta", Data: sample},
	}
	if diff := cmp.Diff(want, readArchive(t, buf.Bytes())); diff != "" {
		t.Fatalf("unexpected entries (-want +got):\n%s", diff)
	}
	wantStats := Stats{Folders: 3, Files: 3, Bytes: int64(4 + 12 + len(sample))}
	if diff := cmp.Diff(wantStats, stats); diff != "" {
		t.Fatalf("unexpected stats (-want +got):\n%s", diff)
	}
	for i, b := range []*testutil.TrackedBody{b1, b2, b3} {
		if !b.Closed() {
			t.Fatalf("body %d was not closed", i)
		}
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range zr.File {
		if !f.Modified.Equal(modTime) {
			t.Fatalf("entry %s has mod time %v, want %v", f.Name, f.Modified, modTime)
		}
	}
}

func TestWriteNames(t *testing.T) {
	var files []drs.RetrievedFile
	for _, name := range []string{"../../etc/passwd", "x.fasta", "x.fasta", "dir\\x.fasta", "", ".."} {
		f, _ := file(name, name)
		files = append(files, f)
	}
	results := []download.SequenceResult{
		{SequenceID: "../A", Files: files},
		{SequenceID: ".."},
	}

	var buf bytes.Buffer
	if _, err := Write(context.Background(), &buf, results, WithMethod(zip.Store)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var names []string
	for _, e := range readArchive(t, buf.Bytes()) {
		names = append(names, e.Name)
	}
	want := []string{
		".._A/",
		".._A/passwd",
		".._A/x.fasta",
		".._A/x (1).fasta",
		".._A/x (2).fasta",
		".._A/file",
		".._A/file (1)",
		"sequence/",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("unexpected names (-want +got):\n%s", diff)
	}
}

type failingWriter struct {
	limit int
	n     int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > w.limit {
		return 0, errors.New("broken pipe")
	}
	w.n += len(p)
	return len(p), nil
}

func TestWriteFailureClosesBodies(t *testing.T) {
	var bodies []*testutil.TrackedBody
	var files []drs.RetrievedFile
	for _, name := range []string{"a", "b", "c"} {
		f, b := file(name, strings.Repeat(name, 1<<20))
		files = append(files, f)
		bodies = append(bodies, b)
	}
	d, db := file("d", "d")
	bodies = append(bodies, db)
	results := []download.SequenceResult{
		{SequenceID: "A", Files: files},
		{SequenceID: "B", Files: []drs.RetrievedFile{d}},
	}

	_, err := Write(context.Background(), &failingWriter{limit: 1024}, results, WithMethod(zip.Store))
	if !errors.Is(err, ErrArchiveWrite) {
		t.Fatalf("expected ErrArchiveWrite, got %v", err)
	}
	for i, b := range bodies {
		if !b.Closed() {
			t.Fatalf("body %d was not closed", i)
		}
	}
}

func TestWriteCancelled(t *testing.T) {
	f, b := file("a", "data")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Write(ctx, io.Discard, []download.SequenceResult{{SequenceID: "A", Files: []drs.RetrievedFile{f}}})
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrArchiveWrite) {
		t.Fatalf("expected cancelled archive write, got %v", err)
	}
	if !b.Closed() {
		t.Fatal("body was not closed")
	}
}

func TestWriteFlushes(t *testing.T) {
	f1, _ := file("a", "a")
	f2, _ := file("b", "b")
	rec := httptest.NewRecorder()
	_, err := Write(context.Background(), rec, []download.SequenceResult{{SequenceID: "A", Files: []drs.RetrievedFile{f1, f2}}}, WithFlushInterval(1))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !rec.Flushed {
		t.Fatal("expected the response to be flushed")
	}
	if got := readArchive(t, rec.Body.Bytes()); len(got) != 3 {
		t.Fatalf("expected 3 entries, got %+v", got)
	}
}
