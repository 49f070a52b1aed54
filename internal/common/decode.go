package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// ReadBody reads the whole request body. Bodies cut off by http.MaxBytesReader yield a 413
// AppError, other read failures a 400.
func ReadBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, bodyError(err)
	}
	return body, nil
}

// DecodeJSON decodes the request body into v and maps failures to client errors.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return ClientInput("BAD_REQUEST", "request body is required", nil)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return bodyError(err)
	}
	return nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return NewAppError(KindClientInput, "PAYLOAD_TOO_LARGE", "request body too large", http.StatusRequestEntityTooLarge, err)
	}
	if errors.Is(err, io.EOF) {
		return ClientInput("BAD_REQUEST", "request body is required", err)
	}
	return ClientInput("BAD_REQUEST", "invalid body", err)
}
