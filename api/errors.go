package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
)

// errorBodyLimit bounds how much of an error response is read.
const errorBodyLimit = 64 << 10

// Error is a non-2xx answer from the API. The request went through; the
// server refused it.
type Error struct {
	Status int
	// Detail is the top-level "detail" message, if any.
	Detail string
	// Fields holds per-field validation messages, e.g. {"email": ["..."]}.
	Fields map[string][]string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message())
}

// fieldPriority lists the fields whose messages are preferred when no
// top-level detail is present.
var fieldPriority = []string{"username", "email", "non_field_errors"}

// Message returns the most useful human-readable message: the detail, else
// the first field message, else the status text.
func (e *Error) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	for _, f := range fieldPriority {
		if msgs := e.Fields[f]; len(msgs) > 0 {
			return msgs[0]
		}
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if msgs := e.Fields[k]; len(msgs) > 0 {
			return k + ": " + msgs[0]
		}
	}
	if text := http.StatusText(e.Status); text != "" {
		return text
	}
	return "unexpected response"
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not an
// *Error.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

func newError(resp *http.Response) *Error {
	e := &Error{Status: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if err != nil || len(body) == 0 {
		return e
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return e
	}
	for k, v := range raw {
		if k == "detail" {
			_ = json.Unmarshal(v, &e.Detail)
			continue
		}
		var msgs []string
		if err := json.Unmarshal(v, &msgs); err != nil {
			var one string
			if json.Unmarshal(v, &one) != nil {
				continue
			}
			msgs = []string{one}
		}
		if e.Fields == nil {
			e.Fields = make(map[string][]string)
		}
		e.Fields[k] = msgs
	}
	return e
}
