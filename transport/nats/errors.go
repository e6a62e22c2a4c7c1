package nats

import (
	"errors"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/codeindex"
)

const (
	RequestIDHeader  = "request_id"
	DependencyHeader = "dependency"
	OpHeader         = "op"
	CauseHeader      = "cause"
)

// RemoteError is an error reported by the service on the other side of a
// request. It unwraps to the matching local sentinel when there is one.
type RemoteError struct {
	Code        string
	Description string

	base error
}

func (e *RemoteError) Error() string {
	return e.Code + ":" + e.Description
}

func (e *RemoteError) Unwrap() error {
	return e.base
}

func respondError(r micro.Request, err error) {
	var depErr *codeindex.DependencyError

	switch {
	case errors.Is(err, codeindex.ErrValidation):
		r.Error("400", err.Error(), nil)

	case errors.As(err, &depErr):
		headers := micro.Headers{}
		headers[DependencyHeader] = []string{string(depErr.Dependency)}
		headers[OpHeader] = []string{depErr.Op}
		headers[CauseHeader] = []string{depErr.Err.Error()}

		r.Error("502", err.Error(), nil, micro.WithHeaders(headers))

	default:
		r.Error("417", err.Error(), nil)
	}
}

// Error decodes a service error carried in the reply headers, or returns nil
// for a successful reply.
func Error(msg *nats.Msg) error {
	if msg == nil {
		return errors.New("nil message")
	}

	code := msg.Header.Get(micro.ErrorCodeHeader)
	if code == "" {
		return nil
	}

	description := msg.Header.Get(micro.ErrorHeader)
	if description == "" {
		description = "unknown error"
	}

	err := &RemoteError{
		Code:        code,
		Description: description,
	}

	switch code {
	case "400":
		err.base = codeindex.ErrValidation

	case "502":
		cause := msg.Header.Get(CauseHeader)
		if cause == "" {
			cause = description
		}

		return &codeindex.DependencyError{
			Dependency: codeindex.Dependency(msg.Header.Get(DependencyHeader)),
			Op:         msg.Header.Get(OpHeader),
			Err:        errors.New(cause),
		}
	}

	return err
}
