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
	"context"
	"errors"
)

var (
	ErrLookupFailed = errors.New("index lookup failed")
	ErrMissingHost  = errors.New("index host is not configured")
)

// FileRecord is one file listed for a sequence in the index.
type FileRecord struct {
	FileID      string  `json:"file_id"`
	FileType    *string `json:"file_type"`
	DRSFilename *string `json:"drs_filename"`
	DRSFilePath *string `json:"drs_filepath"`
}

// Index maps sequence ids to their file manifests.
type Index interface {
	// Lookup returns the file records of every id known to the index in one
	// batched call. Ids missing from the result have no files.
	Lookup(ctx context.Context, ids []string) (map[string][]FileRecord, error)
}

// Static is an in-memory Index.
type Static map[string][]FileRecord

func (s Static) Lookup(_ context.Context, ids []string) (map[string][]FileRecord, error) {
	out := make(map[string][]FileRecord, len(ids))
	for _, id := range ids {
		if files, ok := s[id]; ok {
			out[id] = files
		}
	}
	return out, nil
}
