package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
)

// ContentTypeJSON is the only content type accepted for broker replies.
const ContentTypeJSON = "application/json"

var (
	// ErrMalformedReply indicates a reply that is not a valid envelope.
	ErrMalformedReply = errors.New("malformed reply")
)

// Envelope is the discriminated wrapper around every broker reply.
// When Success is true Data holds the operation result, otherwise an ErrorInfo.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// ErrorInfo is the payload of a failure envelope.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DecodeEnvelope validates and decodes a reply body. It rejects non-JSON
// content types, empty or non-JSON bodies, and objects whose success field is
// missing or not a boolean or whose data field is missing.
func DecodeEnvelope(contentType string, body []byte) (Envelope, error) {
	if !isJSON(contentType) {
		return Envelope{}, fmt.Errorf("%w: content type %q", ErrMalformedReply, contentType)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty body", ErrMalformedReply)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	successRaw, ok := raw["success"]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing success", ErrMalformedReply)
	}
	var success bool
	if err := json.Unmarshal(successRaw, &success); err != nil || isNull(successRaw) {
		return Envelope{}, fmt.Errorf("%w: success is not a boolean", ErrMalformedReply)
	}

	data, ok := raw["data"]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing data", ErrMalformedReply)
	}

	return Envelope{Success: success, Data: data}, nil
}

// ErrorInfo decodes the failure payload. A payload that cannot be decoded
// yields an ErrorInfo with a zero code, which maps to an internal error.
func (e Envelope) ErrorInfo() ErrorInfo {
	var info ErrorInfo
	if err := json.Unmarshal(e.Data, &info); err != nil {
		return ErrorInfo{Message: "unreadable error payload"}
	}
	return info
}

// EncodeSuccess builds a success envelope around v.
func EncodeSuccess(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return json.Marshal(Envelope{Success: true, Data: data})
}

// EncodeFailure builds a failure envelope.
func EncodeFailure(code int, message string) ([]byte, error) {
	data, err := json.Marshal(ErrorInfo{Code: code, Message: message})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Success: false, Data: data})
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == ContentTypeJSON
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
