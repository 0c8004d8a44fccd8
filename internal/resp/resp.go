// Package resp is the response contract shared by every HTTP handler in the
// service: a handler never writes to an http.ResponseWriter directly, it
// returns a Result and the httpapi package translates it.
package resp

import "strconv"

// ErrObj is the JSON error envelope: {"error","message","statusCode",
// [retryAfter, circuitState]}.
type ErrObj struct {
	Code         string `json:"error"`
	Message      string `json:"message"`
	StatusCode   int    `json:"statusCode"`
	RetryAfter   *int   `json:"retryAfter,omitempty"`
	CircuitState string `json:"circuitState,omitempty"`
}

// Result is the contract returned by every handler. If JSON=true, Body is
// already a serialized JSON document. If Err!=nil, the server sends the
// ErrObj instead of Body, with Status as the HTTP status line.
type Result struct {
	Status  int
	Body    string
	JSON    bool
	Err     *ErrObj
	Headers map[string]string // extra headers (Retry-After, Set-Cookie, X-Request-Id, ...)
}

// WithHeader returns a copy of r with an additional header. If r.Headers is
// already non-nil the map is shared (not cloned) between the original and
// the copy — only the first WithHeader call in a chain allocates.
func (r Result) WithHeader(k, v string) Result {
	if r.Headers == nil {
		r.Headers = make(map[string]string, 1)
	}
	r.Headers[k] = v
	return r
}

// Success constructors.

func PlainOK(body string) Result { return Result{Status: 200, Body: body, JSON: false} }
func JSONOK(json string) Result  { return Result{Status: 200, Body: json, JSON: true} }

// Error constructors, one per error kind.

func BadReq(code, message string) Result { return errResult(400, code, message) }

func Unauthorized(code, message string) Result { return errResult(401, code, message) }

// Forbidden is status 401, not 403: a non-admin hitting an admin route must
// be indistinguishable from an unauthenticated caller.
func Forbidden(code, message string) Result { return errResult(401, code, message) }

func NotFound(code, message string) Result { return errResult(404, code, message) }

// OverCapacity is a breaker rejection: 503 with Retry-After and the breaker
// state that produced it.
func OverCapacity(code, message string, retryAfterSeconds int, circuitState string) Result {
	r := errResult(503, code, message)
	ra := retryAfterSeconds
	r.Err.RetryAfter = &ra
	r.Err.CircuitState = circuitState
	return r.WithHeader("Retry-After", strconv.Itoa(retryAfterSeconds))
}

// Cancelled is a session-cancellation or client-disconnect outcome. It is
// not logged as an error.
func Cancelled(code, message string) Result { return errResult(499, code, message) }

func Internal(code, message string) Result { return errResult(500, code, message) }

func errResult(status int, code, message string) Result {
	return Result{
		Status: status,
		JSON:   true,
		Err:    &ErrObj{Code: code, Message: message, StatusCode: status},
	}
}
