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

package mcp

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ToContent converts an arbitrary handler return value into the MCP content
// item sequence. Strings become text items, byte slices become blobs,
// already-shaped item sequences pass through, and any other structured value
// is JSON-encoded and wrapped as application/json text.
func ToContent(v any, defaultMime string) []any {
	switch val := v.(type) {
	case nil:
		return []any{}
	case string:
		return []any{TextContent{Type: "text", Text: val, MimeType: defaultMime}}
	case []byte:
		mime := defaultMime
		if sniffed := DetectImageMime(val); sniffed != "" {
			mime = sniffed
		}
		return []any{BlobContent{
			Type:     "blob",
			Blob:     base64.StdEncoding.EncodeToString(val),
			MimeType: mime,
		}}
	case []any:
		if allShaped(val) {
			return val
		}
	}
	return []any{jsonContent(v)}
}

// ToResourceContents converts a resource handler return value, filling the
// resource URI into every item that does not already carry one.
func ToResourceContents(v any, uri, defaultMime string) []any {
	items := ToContent(v, defaultMime)
	out := make([]any, 0, len(items))
	for _, item := range items {
		switch c := item.(type) {
		case TextContent:
			if c.URI == "" {
				c.URI = uri
			}
			out = append(out, c)
		case BlobContent:
			if c.URI == "" {
				c.URI = uri
			}
			out = append(out, c)
		case map[string]any:
			if _, ok := c["uri"]; !ok {
				filled := make(map[string]any, len(c)+1)
				for k, v := range c {
					filled[k] = v
				}
				filled["uri"] = uri
				out = append(out, filled)
				continue
			}
			out = append(out, c)
		default:
			out = append(out, item)
		}
	}
	return out
}

// NewImageContent returns an image item, sniffing the mime type from the
// image bytes when none is given.
func NewImageContent(data []byte, mimeType string) ImageContent {
	if mimeType == "" {
		mimeType = DetectImageMime(data)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return ImageContent{
		Type:     "image",
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}
}

// NewAudioContent returns an audio item.
func NewAudioContent(data []byte, mimeType string) AudioContent {
	return AudioContent{
		Type:     "audio",
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}
}

// DetectImageMime returns the mime type for common image formats based on
// their magic numbers, or "" when the bytes match none of them.
func DetectImageMime(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	}
	return ""
}

// allShaped reports whether every element already looks like a content item:
// a known content struct or a map carrying a "type" key.
func allShaped(items []any) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		switch c := item.(type) {
		case TextContent, ImageContent, AudioContent, BlobContent:
		case map[string]any:
			if _, ok := c["type"]; !ok {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func jsonContent(v any) TextContent {
	b, err := json.Marshal(v)
	if err != nil {
		return TextContent{Type: "text", Text: fmt.Sprintf("fail to marshal: %s, result: %v", err, v)}
	}
	return TextContent{Type: "text", Text: string(b), MimeType: "application/json"}
}
