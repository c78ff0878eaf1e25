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

package download

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	ErrNoFilesFound = fmt.Errorf("no files found: %w", errdefs.ErrNotFound)
	ErrIndexLookup  = errors.New("sequence index lookup failed")
)

// ValidationError reports a batch whose size is outside [1, max].
type ValidationError struct {
	Count int
	Max   int
}

func (e *ValidationError) Error() string {
	if e.Count == 0 {
		return "No sequence ids were provided."
	}
	return fmt.Sprintf("Number of sequence ids provided [%d] exceeds max allowed [%d].", e.Count, e.Max)
}

func (e *ValidationError) Unwrap() error {
	return errdefs.ErrInvalidArgument
}

// FileError is the failure of one file of a batch.
type FileError struct {
	SequenceID string
	FileID     string
	Err        error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("sequence %q file %q: %v", e.SequenceID, e.FileID, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
