// Package sdk provides the typed HTTP access client used to talk to the
// pinch backend-for-frontend and to upstream record APIs.
//
// # Features
//
// The SDK provides:
//   - Verb methods (Get, Post, Put, Patch, Delete) with JSON bodies
//   - Generic helpers returning typed results (sdk.Get[T] and friends)
//   - Bearer-token injection from local storage or from an incoming request
//   - Bounded retries for idempotent methods on transient statuses
//   - One error type covering transport, timeout, protocol and validation failures
//   - OpenTelemetry spans with trace-context propagation
//
// # Variants
//
// NewClient builds the local-storage variant. It resolves the token from a
// key-value store on every request and is constructed once per process:
//
//	store, err := storage.NewSQLite(ctx, path)
//	client, err := sdk.NewClient(sdk.DefaultConfig().
//	    WithTokenSource(sdk.NewStorageTokenSource(store)))
//
// NewRequestClient builds the request-context variant. It captures the token
// from one incoming request (cookie "authToken", else a Bearer
// Authorization header) and must be created per request:
//
//	src := sdk.FromHTTPRequest(r)
//	client, err := sdk.NewRequestClient(cfg, src)
//
// # Retries
//
// GET, PUT, HEAD, DELETE, OPTIONS and TRACE are retried up to Config.Retry
// times when the response status is 408, 413, 429, 500, 502, 503 or 504.
// POST and PATCH are never retried, and neither are transport failures.
//
// # Error Handling
//
// Every failure is an *Error carrying an ErrorType. Non-2xx responses wrap
// an *APIError with the status, the decoded body and a message:
//
//	_, err := sdk.Get[Record](ctx, client, "Table1/rec1")
//	if apiErr, ok := sdk.AsAPIError(err); ok {
//	    log.Printf("%d %s", apiErr.Status, apiErr.Message)
//	}
//
//	if errors.Is(err, sdk.ErrTimeout) {
//	    // the attempt exceeded Config.Timeout
//	}
package sdk
