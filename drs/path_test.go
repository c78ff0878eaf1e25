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
	"errors"
	"testing"

	"github.com/supercluster/sequence-archiver/config"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  ObjectAddress
		error bool
	}{
		{
			name: "drs uri",
			raw:  "drs://drs.example.org/3f2a8d",
			want: ObjectAddress{Domain: "drs.example.org", ObjectID: "/3f2a8d"},
		},
		{
			name: "host with port",
			raw:  "drs://127.0.0.1:8443/abc/def",
			want: ObjectAddress{Domain: "127.0.0.1:8443", ObjectID: "/abc/def"},
		},
		{
			name: "escaped object id",
			raw:  "drs://drs.example.org/a%2Fb%3Fc",
			want: ObjectAddress{Domain: "drs.example.org", ObjectID: "/a%2Fb%3Fc"},
		},
		{
			name:  "no scheme",
			raw:   "drs.example.org/3f2a8d",
			error: true,
		},
		{
			name:  "no object id",
			raw:   "drs://drs.example.org/",
			error: true,
		},
		{
			name:  "empty",
			raw:   "",
			error: true,
		},
		{
			name:  "unparsable",
			raw:   "drs://%zz/abc",
			error: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePath(tc.raw)
			if tc.error {
				if !errors.Is(err, ErrMalformedPath) {
					t.Fatalf("expected ErrMalformedPath, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("unexpected address; want %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestObjectURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DRSConfig
		raw  string
		want string
	}{
		{
			name: "default template",
			cfg:  config.DRSConfig{Protocol: "https", ObjectPath: "ga4gh/drs/v1/objects"},
			raw:  "drs://drs.example.org/3f2a8d",
			want: "https://drs.example.org/ga4gh/drs/v1/objects/3f2a8d",
		},
		{
			name: "slashes collapse",
			cfg:  config.DRSConfig{Protocol: "http", ObjectPath: "/ga4gh/drs/v1/objects/"},
			raw:  "drs://drs.example.org//3f2a8d",
			want: "http://drs.example.org/ga4gh/drs/v1/objects/3f2a8d",
		},
		{
			name: "escaped object id stays one segment",
			cfg:  config.DRSConfig{Protocol: "https", ObjectPath: "ga4gh/drs/v1/objects"},
			raw:  "drs://h.example/a%2Fb%3Fc",
			want: "https://h.example/ga4gh/drs/v1/objects/a%2Fb%3Fc",
		},
		{
			name: "empty object path",
			cfg:  config.DRSConfig{Protocol: "https"},
			raw:  "drs://drs.example.org/3f2a8d",
			want: "https://drs.example.org/3f2a8d",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ObjectURL(tc.cfg, tc.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("want %q, got %q", tc.want, got)
			}
		})
	}

	if _, err := ObjectURL(config.DRSConfig{Protocol: "https"}, "not a uri"); !errors.Is(err, ErrMalformedPath) {
		t.Fatalf("expected ErrMalformedPath, got %v", err)
	}
}
