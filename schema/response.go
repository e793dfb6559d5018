package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// Kind tags the shape of a response payload.
type Kind string

const (
	KindObject Kind = "object"
	KindList   Kind = "list"
	KindScalar Kind = "scalar"
	KindEmpty  Kind = "empty"
	KindBinary Kind = "binary"
)

type (
	// Pagination is the optional paging block of a list envelope.
	Pagination struct {
		Page       int `json:"page,omitempty"`
		Limit      int `json:"limit,omitempty"`
		Total      int `json:"total,omitempty"`
		TotalPages int `json:"totalPages,omitempty"`
	}

	// Response is the envelope shared by the pipeline and its consumers.
	// Data holds the unwrapped payload; Body the full (sanitized) wire body.
	Response struct {
		StatusCode  int
		Header      http.Header
		ContentType string
		Kind        Kind
		Body        []byte
		Data        json.RawMessage
		Message     string
		Pagination  *Pagination
		Cached      bool
	}

	wireEnvelope struct {
		Success    *bool           `json:"success"`
		Data       json.RawMessage `json:"data"`
		Message    string          `json:"message"`
		Pagination *Pagination     `json:"pagination"`
	}
)

// NewResponse classifies a raw HTTP payload. A JSON object carrying a "data" member next to
// "success", "message" or "pagination" is unwrapped; any other JSON document is the data itself.
func NewResponse(statusCode int, header http.Header, body []byte) *Response {
	if header == nil {
		header = http.Header{}
	}
	ret := &Response{
		StatusCode:  statusCode,
		Header:      header,
		ContentType: header.Get("Content-Type"),
		Body:        body,
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		ret.Kind = KindEmpty
		return ret
	}
	isJSON := IsJSONContentType(ret.ContentType) || ret.ContentType == ""
	if !isJSON || !json.Valid(trimmed) {
		ret.Kind = KindBinary
		return ret
	}
	ret.Data = json.RawMessage(trimmed)
	if trimmed[0] == '{' {
		if env, ok := unwrapEnvelope(trimmed); ok {
			ret.Data = env.Data
			ret.Message = env.Message
			ret.Pagination = env.Pagination
		}
	}
	ret.Kind = kindOf(ret.Data)
	return ret
}

func unwrapEnvelope(data []byte) (*wireEnvelope, bool) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, false
	}
	if _, ok := members["data"]; !ok {
		return nil, false
	}
	_, hasSuccess := members["success"]
	_, hasMessage := members["message"]
	_, hasPagination := members["pagination"]
	if !hasSuccess && !hasMessage && !hasPagination && len(members) > 1 {
		return nil, false
	}
	env := &wireEnvelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, false
	}
	return env, true
}

func kindOf(data json.RawMessage) Kind {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return KindEmpty
	}
	switch trimmed[0] {
	case '{':
		return KindObject
	case '[':
		return KindList
	default:
		return KindScalar
	}
}

// Decode unmarshals the unwrapped payload into target.
func (r *Response) Decode(target any) error {
	if r == nil {
		return fmt.Errorf("response was nil")
	}
	switch r.Kind {
	case KindEmpty:
		return nil
	case KindBinary:
		return fmt.Errorf("cannot decode %s response as JSON", r.ContentType)
	}
	return json.Unmarshal(r.Data, target)
}

// Clone returns a deep copy so that cached snapshots cannot be mutated by callers.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	ret := *r
	ret.Header = r.Header.Clone()
	ret.Body = bytes.Clone(r.Body)
	ret.Data = bytes.Clone(r.Data)
	if r.Pagination != nil {
		pagination := *r.Pagination
		ret.Pagination = &pagination
	}
	return &ret
}

// IsJSONContentType reports whether the media type carries JSON.
func IsJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
