package sdk

import (
	"context"
	"net/http"
)

// Get performs a GET and decodes the response into a T.
//
// Example:
//
//	type Record struct {
//	    ID     string         `json:"id"`
//	    Fields map[string]any `json:"fields"`
//	}
//
//	rec, err := sdk.Get[Record](ctx, client, "Table1/rec123")
func Get[T any](ctx context.Context, c Client, path string, opts ...RequestOption) (T, error) {
	return Do[T](ctx, c, http.MethodGet, path, nil, opts...)
}

// Post sends body as JSON and decodes the response into a T.
func Post[T any](ctx context.Context, c Client, path string, body interface{}, opts ...RequestOption) (T, error) {
	return Do[T](ctx, c, http.MethodPost, path, body, opts...)
}

// Put sends body as JSON and decodes the response into a T.
func Put[T any](ctx context.Context, c Client, path string, body interface{}, opts ...RequestOption) (T, error) {
	return Do[T](ctx, c, http.MethodPut, path, body, opts...)
}

// Patch sends body as JSON and decodes the response into a T.
func Patch[T any](ctx context.Context, c Client, path string, body interface{}, opts ...RequestOption) (T, error) {
	return Do[T](ctx, c, http.MethodPatch, path, body, opts...)
}

// Delete performs a DELETE and decodes the response into a T.
func Delete[T any](ctx context.Context, c Client, path string, opts ...RequestOption) (T, error) {
	return Do[T](ctx, c, http.MethodDelete, path, nil, opts...)
}

// Do performs a call with method and decodes the response into a T.
// On error the zero value of T is returned.
func Do[T any](ctx context.Context, c Client, method, path string, body interface{}, opts ...RequestOption) (T, error) {
	var out T
	if err := c.Do(ctx, method, path, body, &out, opts...); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
