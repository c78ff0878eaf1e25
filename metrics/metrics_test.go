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
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve(t *testing.T) {
	Register()
	Register()

	beforeCount := testutil.ToFloat64(operationCount.WithLabelValues(AccessRace))
	beforeFailures := testutil.ToFloat64(operationFailureCount.WithLabelValues(AccessRace))

	Observe(AccessRace, time.Now(), nil)
	Observe(AccessRace, time.Now(), errors.New("all candidates failed"))

	if got := testutil.ToFloat64(operationCount.WithLabelValues(AccessRace)) - beforeCount; got != 2 {
		t.Fatalf("expected 2 operations, got %v", got)
	}
	if got := testutil.ToFloat64(operationFailureCount.WithLabelValues(AccessRace)) - beforeFailures; got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}

func TestAddBytesCount(t *testing.T) {
	before := testutil.ToFloat64(bytesCount.WithLabelValues(ArchiveEntry))
	AddBytesCount(ArchiveEntry, 512)
	if got := testutil.ToFloat64(bytesCount.WithLabelValues(ArchiveEntry)) - before; got != 512 {
		t.Fatalf("expected 512 bytes, got %v", got)
	}
}
