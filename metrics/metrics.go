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

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OperationLatencyKeyMilliseconds is the key for operation latency metrics in milliseconds.
	OperationLatencyKeyMilliseconds = "operation_duration_milliseconds"

	// OperationCountKey is the key for operation count metrics.
	OperationCountKey = "operation_count"

	// OperationFailureCountKey is the key for failed operation count metrics.
	OperationFailureCountKey = "operation_failure_count"

	// BytesServedKey is the key for bytes written into archives.
	BytesServedKey = "bytes_served"

	namespace = "sequence_archiver"
	subsystem = "download"
)

// Lists all metric labels.
const (
	DownloadRequest = "download_request"
	IndexLookup     = "index_lookup"
	DRSMetadata     = "drs_metadata"
	AccessRace      = "access_race"
	AccessAttempt   = "access_attempt"
	ArchiveWrite    = "archive_write"
	ArchiveEntry    = "archive_entry"
)

var (
	latencyBucketsMilliseconds = []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384, 32768, 65536} // in milliseconds

	// operationLatencyMilliseconds collects operation latency numbers in milliseconds grouped by operation type.
	operationLatencyMilliseconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      OperationLatencyKeyMilliseconds,
			Help:      "Latency in milliseconds of sequence download operations. Broken down by operation type.",
			Buckets:   latencyBucketsMilliseconds,
		},
		[]string{"operation_type"},
	)

	operationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      OperationCountKey,
			Help:      "The count of sequence download operations. Broken down by operation type.",
		},
		[]string{"operation_type"},
	)

	operationFailureCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      OperationFailureCountKey,
			Help:      "The count of failed sequence download operations. Broken down by operation type.",
		},
		[]string{"operation_type"},
	)

	bytesCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      BytesServedKey,
			Help:      "The number of uncompressed bytes written into archives. Broken down by operation type.",
		},
		[]string{"operation_type"},
	)
)

var register sync.Once

// sinceInMilliseconds gets the time since the specified start in milliseconds, keeping
// sub-millisecond precision.
func sinceInMilliseconds(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond/time.Nanosecond)
}

// Register registers metrics. This is always called only once.
func Register() {
	register.Do(func() {
		prometheus.MustRegister(operationLatencyMilliseconds)
		prometheus.MustRegister(operationCount)
		prometheus.MustRegister(operationFailureCount)
		prometheus.MustRegister(bytesCount)
	})
}

// MeasureLatencyInMilliseconds wraps the labels attachment as well as calling Observe into a single method.
func MeasureLatencyInMilliseconds(operation string, start time.Time) {
	operationLatencyMilliseconds.WithLabelValues(operation).Observe(sinceInMilliseconds(start))
}

// IncOperationCount wraps the labels attachment as well as calling Inc into a single method.
func IncOperationCount(operation string) {
	operationCount.WithLabelValues(operation).Inc()
}

// IncOperationFailureCount wraps the labels attachment as well as calling Inc into a single method.
func IncOperationFailureCount(operation string) {
	operationFailureCount.WithLabelValues(operation).Inc()
}

// AddBytesCount wraps the labels attachment as well as calling Add into a single method.
func AddBytesCount(operation string, bytes int64) {
	bytesCount.WithLabelValues(operation).Add(float64(bytes))
}

// Observe records latency and count for an operation and, if err is non-nil, a failure.
// It is meant to be deferred:
//
//	defer func() { metrics.Observe(metrics.DRSMetadata, start, err) }()
func Observe(operation string, start time.Time, err error) {
	MeasureLatencyInMilliseconds(operation, start)
	IncOperationCount(operation)
	if err != nil {
		IncOperationFailureCount(operation)
	}
}
