// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound reports a missing record. Resource names the table-level
// entity, Key the lookup value.
type ErrNotFound struct {
	Resource string
	Key      string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

// ErrInvalid is malformed client input: bad token shape, non-JSON body,
// campaign configuration that breaks an invariant.
type ErrInvalid struct {
	Reason string
	Err    error
}

func (e *ErrInvalid) Error() string {
	return e.Reason
}

func (e *ErrInvalid) Unwrap() error {
	return e.Err
}

// ErrConflict means the request is well formed but the current state
// forbids it, e.g. a campaign that is already being dispatched.
type ErrConflict struct {
	Reason string
}

func (e *ErrConflict) Error() string {
	return e.Reason
}

// ErrUpstream wraps a failure of an outbound dependency (source site,
// mail transport).
type ErrUpstream struct {
	Op  string
	Err error
}

func (e *ErrUpstream) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ErrUpstream) Unwrap() error {
	return e.Err
}

func NewNotFound(resource string, key any) error {
	return &ErrNotFound{Resource: resource, Key: fmt.Sprint(key)}
}

// NewCampaignNotFound is kept for the campaign paths that only know an id.
func NewCampaignNotFound(id int) error {
	return NewNotFound("campaign", id)
}

func NewInvalid(format string, args ...any) error {
	return &ErrInvalid{Reason: fmt.Sprintf(format, args...)}
}

// WrapInvalid is NewInvalid with a sentinel callers can match with errors.Is.
func WrapInvalid(sentinel error, format string, args ...any) error {
	return &ErrInvalid{Reason: fmt.Sprintf(format, args...), Err: sentinel}
}

func NewConflict(format string, args ...any) error {
	return &ErrConflict{Reason: fmt.Sprintf(format, args...)}
}

func NewUpstream(op string, err error) error {
	return &ErrUpstream{Op: op, Err: err}
}

func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

func IsInvalid(err error) bool {
	var iv *ErrInvalid
	return errors.As(err, &iv)
}

func IsConflict(err error) bool {
	var c *ErrConflict
	return errors.As(err, &c)
}

// StatusCode maps an error onto the HTTP status the controllers return.
func StatusCode(err error) int {
	var (
		nf *ErrNotFound
		iv *ErrInvalid
		cf *ErrConflict
		up *ErrUpstream
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &iv):
		return http.StatusBadRequest
	case errors.As(err, &cf):
		return http.StatusConflict
	case errors.As(err, &up):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
