// Copyright 2025 mcpkit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import "strings"

// Transport kind tags attached to request contexts.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// RequestContext is the immutable bundle of transport-level metadata attached
// to each inbound message. It is created by the transport before handing a
// message to the dispatcher and never mutated afterwards.
type RequestContext struct {
	headers   map[string]string
	params    map[string]string
	method    string
	path      string
	transport string
	metadata  map[string]string
}

// NewRequestContext builds a RequestContext. Header names are lower-cased;
// all maps are copied so later mutation of the inputs cannot leak in.
func NewRequestContext(transport, method, path string, headers, params, metadata map[string]string) *RequestContext {
	rc := &RequestContext{
		headers:   make(map[string]string, len(headers)),
		params:    make(map[string]string, len(params)),
		metadata:  make(map[string]string, len(metadata)),
		method:    method,
		path:      path,
		transport: transport,
	}
	for k, v := range headers {
		rc.headers[strings.ToLower(k)] = v
	}
	for k, v := range params {
		rc.params[k] = v
	}
	for k, v := range metadata {
		rc.metadata[k] = v
	}
	return rc
}

// Header returns the header value for a case-insensitive name.
func (rc *RequestContext) Header(name string) string {
	return rc.headers[strings.ToLower(name)]
}

// Param returns the query or form parameter value for name.
func (rc *RequestContext) Param(name string) string {
	return rc.params[name]
}

// Method returns the transport-level method (HTTP verb, or "" for stdio).
func (rc *RequestContext) Method() string { return rc.method }

// Path returns the transport-level path.
func (rc *RequestContext) Path() string { return rc.path }

// Transport returns the transport kind tag.
func (rc *RequestContext) Transport() string { return rc.transport }

// Metadata returns the transport metadata value for key.
func (rc *RequestContext) Metadata(key string) string { return rc.metadata[key] }
