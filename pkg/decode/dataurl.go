package decode

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DataURL is an RFC 2397 "data:" URL with base64 payload.
type DataURL string

// Encode builds a base64 data URL for data.
func Encode(mediaType string, data []byte) DataURL {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return DataURL("data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data))
}

// Parse splits u into its media type and decoded payload.
// Only base64 payloads are supported.
func (u DataURL) Parse() (string, []byte, error) {
	s := string(u)
	if !strings.HasPrefix(s, "data:") {
		return "", nil, fmt.Errorf("not a data URL")
	}
	header, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return "", nil, fmt.Errorf("data URL has no payload separator")
	}
	mediaType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("data URL payload: %w", err)
	}
	return mediaType, data, nil
}

// MediaType returns the declared media type, or "" if u is malformed.
func (u DataURL) MediaType() string {
	s := string(u)
	if !strings.HasPrefix(s, "data:") {
		return ""
	}
	header, _, _ := strings.Cut(s[len("data:"):], ",")
	mediaType, _, _ := strings.Cut(header, ";")
	return mediaType
}

// String implements fmt.Stringer.
func (u DataURL) String() string { return string(u) }
