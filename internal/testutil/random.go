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

package testutil

import (
	"hash/fnv"
	"math/rand/v2"
	"testing"
)

// Seed rand source
const TestRandomSeed = 1658503010463818386

const nucleotides = "ACGT"

// TestRand wraps rand/v2 Rand with helper functions. It is seeded with
// TestRandomSeed and the name of the test it is created in, so runs are
// deterministic. TestRand is NOT thread-safe.
type TestRand struct {
	*rand.Rand
}

// NewTestRand returns a TestRand seeded for t.
func NewTestRand(t testing.TB) *TestRand {
	h := fnv.New64a()
	h.Write([]byte(t.Name()))
	return &TestRand{
		rand.New(rand.NewPCG(TestRandomSeed, h.Sum64())),
	}
}

func (r *TestRand) Read(b []byte) {
	for i := range b {
		b[i] = byte(r.Int64())
	}
}

// RandomByteData returns size bytes of random data.
func (r *TestRand) RandomByteData(size int64) []byte {
	b := make([]byte, size)
	r.Read(b)
	return b
}

// RandomSequence returns a FASTA record named name with size random nucleotides.
func (r *TestRand) RandomSequence(name string, size int) []byte {
	b := make([]byte, 0, len(name)+size+3)
	b = append(b, '>')
	b = append(b, name...)
	b = append(b, '\n')
	for range size {
		b = append(b, nucleotides[r.IntN(len(nucleotides))])
	}
	return append(b, '\n')
}
