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

// Package testutil holds helpers shared by package tests.
package testutil

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/containerd/log"
	"github.com/sirupsen/logrus"
)

// TestWriter adapts a testing.TB into an io.Writer
type TestWriter struct {
	t testing.TB
}

func NewTestWriter(t testing.TB) *TestWriter {
	return &TestWriter{t: t}
}

func (t *TestWriter) Write(p []byte) (n int, err error) {
	t.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// LogContext returns a context whose logger writes to t at debug level.
func LogContext(t testing.TB) context.Context {
	l := logrus.New()
	l.SetOutput(NewTestWriter(t))
	l.SetLevel(logrus.DebugLevel)
	return log.WithLogger(context.Background(), logrus.NewEntry(l))
}

// TrackedBody is an io.ReadCloser that records whether it was closed.
type TrackedBody struct {
	io.Reader
	closed atomic.Bool
}

func NewTrackedBody(data []byte) *TrackedBody {
	return &TrackedBody{Reader: bytes.NewReader(data)}
}

func (b *TrackedBody) Close() error {
	b.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (b *TrackedBody) Closed() bool {
	return b.closed.Load()
}
