package appErrors

import (
	"errors"
	"fmt"
)

// Kind classifies a dispatch failure.
type Kind int

const (
	// KindValidation: bad destination or missing contact field. The provider is never called.
	KindValidation Kind = iota + 1
	// KindRejection: the provider answered and refused the payload. Not retried.
	KindRejection
	// KindInfrastructure: timeouts, DNS, connection and 5xx failures. Retry-eligible.
	KindInfrastructure
	// KindLogic: unrecognized trigger or occasion. Fails closed.
	KindLogic
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRejection:
		return "rejection"
	case KindInfrastructure:
		return "infrastructure"
	case KindLogic:
		return "logic"
	}
	return "unknown"
}

// DispatchError is the structured failure recorded against an execution.
type DispatchError struct {
	Kind     Kind
	Provider string
	Reason   string
	Err      error
}

func (e *DispatchError) Error() string {
	prefix := e.Kind.String()
	if e.Provider != "" {
		prefix = e.Provider + " " + prefix
	}
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Reason, e.Err)
	case e.Reason != "":
		return prefix + ": " + e.Reason
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	return prefix + " error"
}

func (e *DispatchError) Unwrap() error { return e.Err }

func Validation(reason string, err error) error {
	return &DispatchError{Kind: KindValidation, Reason: reason, Err: err}
}

func Rejection(provider, reason string) error {
	return &DispatchError{Kind: KindRejection, Provider: provider, Reason: reason}
}

func Infrastructure(provider string, err error) error {
	return &DispatchError{Kind: KindInfrastructure, Provider: provider, Err: err}
}

// KindOf returns the kind of a wrapped DispatchError, or 0.
func KindOf(err error) Kind {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

// IsRetryable is true only for infrastructure failures.
func IsRetryable(err error) bool {
	return KindOf(err) == KindInfrastructure
}
