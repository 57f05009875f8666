package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthorized matches every failure caused by a 401 response.
var ErrUnauthorized = errors.New("unauthorized")

// UnknownErrorMessage is the description used when a failure carries none.
const UnknownErrorMessage = "unknown error"

// FieldError is one per-field validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// EntityError is returned for 422 responses. Its fields map directly onto form
// validation messages.
type EntityError struct {
	Status  int
	Message string
	Fields  []FieldError
}

func (e *EntityError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("entity error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("entity error (%d)", e.Status)
}

// HTTPError is returned for every other non-2xx response.
type HTTPError struct {
	Status  int
	Payload json.RawMessage
}

func (e *HTTPError) Error() string {
	msg := payloadMessage(e.Payload)
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("http error (%d): %s", e.Status, msg)
}

// Is reports 401 failures as ErrUnauthorized.
func (e *HTTPError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// RedirectError is returned in server mode for 401 responses. Location is the
// logout confirmation route carrying the rejected access token, which leaks it
// into URLs and referrers; it is kept for compatibility with existing clients.
type RedirectError struct {
	Location string
}

func (e *RedirectError) Error() string {
	return "redirect to " + e.Location
}

func (e *RedirectError) Is(target error) bool {
	return target == ErrUnauthorized
}

// ErrorMessage returns the user-facing description of err: the payload
// message when the server sent one, otherwise [UnknownErrorMessage].
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var entity *EntityError
	if errors.As(err, &entity) {
		if entity.Message != "" {
			return entity.Message
		}
		if len(entity.Fields) > 0 {
			return entity.Fields[0].Message
		}
		return UnknownErrorMessage
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if msg := payloadMessage(httpErr.Payload); msg != "" {
			return msg
		}
	}
	return UnknownErrorMessage
}

// FieldErrors returns the per-field messages of an [EntityError], keyed by
// field name. It returns nil for any other error.
func FieldErrors(err error) map[string]string {
	var entity *EntityError
	if !errors.As(err, &entity) || len(entity.Fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(entity.Fields))
	for _, f := range entity.Fields {
		if _, dup := out[f.Field]; !dup {
			out[f.Field] = f.Message
		}
	}
	return out
}

func payloadMessage(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Message)
}

func entityFrom(status int, payload json.RawMessage) *EntityError {
	e := &EntityError{Status: status}
	var body struct {
		Message string       `json:"message"`
		Errors  []FieldError `json:"errors"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		e.Message = body.Message
		e.Fields = body.Errors
	}
	return e
}
