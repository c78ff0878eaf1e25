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

package drs

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/supercluster/sequence-archiver/config"
)

// ParsePath splits a drs file path such as drs://drs.example.org/abc123 into
// the host serving the object and the object id.
func ParsePath(raw string) (ObjectAddress, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ObjectAddress{}, fmt.Errorf("%w %q: %w", ErrMalformedPath, raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return ObjectAddress{}, fmt.Errorf("%w %q: missing scheme or host", ErrMalformedPath, raw)
	}
	// Object ids keep their escaping so %2F and %3F stay part of the id.
	id := u.EscapedPath()
	if strings.Trim(id, "/") == "" {
		return ObjectAddress{}, fmt.Errorf("%w %q: missing object id", ErrMalformedPath, raw)
	}
	return ObjectAddress{Domain: u.Host, ObjectID: id}, nil
}

// ObjectURL builds the url of the DRS object endpoint for a drs file path:
// <protocol>://<domain>/<object path>/<object id>.
func ObjectURL(cfg config.DRSConfig, raw string) (string, error) {
	addr, err := ParsePath(raw)
	if err != nil {
		return "", err
	}
	return joinURL(fmt.Sprintf("%s://%s", cfg.Protocol, addr.Domain), cfg.ObjectPath, addr.ObjectID), nil
}

// joinURL joins segments with exactly one slash between them.
func joinURL(base string, segments ...string) string {
	out := strings.TrimRight(base, "/")
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s == "" {
			continue
		}
		out += "/" + s
	}
	return out
}
