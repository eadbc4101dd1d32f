package client

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrUnavailable     = errors.New("server unavailable")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrRemote          = errors.New("remote error")

	// ErrEmptyResponse means the call succeeded but carried no account or session.
	ErrEmptyResponse = errors.New("empty response")

	// ErrNoSession is returned without a round trip when nothing is kept.
	ErrNoSession = fmt.Errorf("%w: no session", ErrUnauthorized)
)

// ServiceError is a failed call to the account service. Kind is one of the
// sentinels above; Reason and Violations come from the status details and are
// meant for logs, never for the user.
type ServiceError struct {
	Kind       error
	Code       codes.Code
	Message    string
	Reason     string
	Violations map[string]string
	Err        error
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v: code=%s", e.Kind, e.Code)
	if e.Message != "" {
		fmt.Fprintf(&b, " message=%q", e.Message)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " reason=%s", e.Reason)
	}
	if len(e.Violations) > 0 {
		fields := make([]string, 0, len(e.Violations))
		for f := range e.Violations {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			fmt.Fprintf(&b, " %s=%q", f, e.Violations[f])
		}
	}
	return b.String()
}

func (e *ServiceError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func kindOf(code codes.Code) error {
	switch code {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.AlreadyExists:
		return ErrAlreadyExists
	case codes.InvalidArgument:
		return ErrInvalidArgument
	default:
		return ErrRemote
	}
}

// mapError turns a gRPC error into a *ServiceError.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}

	se := &ServiceError{Kind: kindOf(st.Code()), Code: st.Code(), Message: st.Message(), Err: err}
	for _, d := range st.Details() {
		switch d := d.(type) {
		case *errdetails.ErrorInfo:
			se.Reason = d.GetReason()
		case *errdetails.BadRequest:
			for _, v := range d.GetFieldViolations() {
				if se.Violations == nil {
					se.Violations = make(map[string]string)
				}
				se.Violations[v.GetField()] = v.GetDescription()
			}
		}
	}
	return se
}
