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

import "io"

// AccessType is the type of a DRS access method.
// See https://ga4gh.github.io/data-repository-service-schemas/preview/release/drs-1.0.0/docs/#_accessmethod
type AccessType string

const (
	AccessTypeHTTPS  AccessType = "https"
	AccessTypeS3     AccessType = "s3"
	AccessTypeGS     AccessType = "gs"
	AccessTypeFTP    AccessType = "ftp"
	AccessTypeFile   AccessType = "file"
	AccessTypeGSIFTP AccessType = "gsiftp"
	AccessTypeGlobus AccessType = "globus"
	AccessTypeHTSGet AccessType = "htsget"
)

// ObjectAddress is the externally resolvable form of a drs file path.
type ObjectAddress struct {
	Domain   string
	ObjectID string
}

// AccessURL is where the bytes of an object can be fetched from.
type AccessURL struct {
	URL string `json:"url"`
	// Headers are "Name: value" pairs to send with the request.
	Headers []string `json:"headers,omitempty"`
}

// AccessMethod is one candidate location of an object.
type AccessMethod struct {
	Type      AccessType `json:"type"`
	AccessURL AccessURL  `json:"access_url"`
	Region    string     `json:"region,omitempty"`
}

// ObjectMetadata describes a resolved object. AccessMethods only holds
// methods that can be retrieved over https, in the order the service listed them.
type ObjectMetadata struct {
	Name          string
	AccessMethods []AccessMethod
}

// URLs returns the access urls of md in order.
func (md ObjectMetadata) URLs() []string {
	urls := make([]string, len(md.AccessMethods))
	for i, m := range md.AccessMethods {
		urls[i] = m.AccessURL.URL
	}
	return urls
}

// RetrievedFile is an open download of one object. Body is owned by exactly one
// consumer, which must read it to the end or discard it, and close it.
type RetrievedFile struct {
	Name string
	Body io.ReadCloser
	// Source is the redacted access url that won the race.
	Source string
}

type objectResponse struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Size          int64          `json:"size"`
	AccessMethods []AccessMethod `json:"access_methods"`
}
