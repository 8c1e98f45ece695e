package classify

import (
	"errors"
	"fmt"
)

var (
	// ErrContract marks a generative reply that does not match the classifier's schema.
	// It is never treated as a false verdict.
	ErrContract = errors.New("classifier contract violation")
	// ErrUnavailable marks a failed or timed-out generative call. Retrying later may succeed.
	ErrUnavailable = errors.New("generative backend unavailable")
)

// ContractError describes a reply that is not a JSON object holding Key as a boolean.
type ContractError struct {
	Classifier string
	Key        string
	Reason     string
	Raw        string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: %s: key %q: %s (response: %.120q)", ErrContract, e.Classifier, e.Key, e.Reason, e.Raw)
}

func (e *ContractError) Is(target error) bool { return target == ErrContract }

type unavailableError struct {
	classifier string
	err        error
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrUnavailable, e.classifier, e.err)
}

func (e *unavailableError) Unwrap() []error { return []error{ErrUnavailable, e.err} }
