package sdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/gjson"
)

// encodeBody serializes a request body as JSON. A nil body yields a nil
// reader so no payload is sent. Raw bytes and json.RawMessage are passed
// through unchanged.
func encodeBody(body interface{}) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("failed to marshal request body: %v", err), "body")
	}
	return data, nil
}

func bodyReader(data []byte) io.Reader {
	if data == nil {
		return nil
	}
	return bytes.NewReader(data)
}

// decodeSuccess decodes a 2xx body into result. An empty body leaves
// result untouched.
func decodeSuccess(body []byte, result interface{}) error {
	if result == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if raw, ok := result.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], body...)
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// parseAPIError normalizes a non-2xx response. A JSON body is decoded
// into Data and its top-level "message" string becomes the message;
// anything else is kept as raw text.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Status:  statusCode,
		Message: fmt.Sprintf("Request failed with status %d", statusCode),
	}

	if len(body) == 0 {
		apiErr.Data = ""
		return apiErr
	}

	if !gjson.ValidBytes(body) {
		apiErr.Data = string(body)
		return apiErr
	}

	parsed := gjson.ParseBytes(body)
	apiErr.Data = parsed.Value()
	if msg := parsed.Get("message"); msg.Type == gjson.String && msg.Str != "" {
		apiErr.Message = msg.Str
	}
	return apiErr
}
