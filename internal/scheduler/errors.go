package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIllegalTransition is wrapped by every rejected state change.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrNotAutoResolvable is returned when auto resolution is requested for a conflict without an automatic remedy.
	ErrNotAutoResolvable = errors.New("conflict is not auto resolvable")
)

// Violation is one failed validation rule.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violation found in an input.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// TransitionError describes a rejected lifecycle or resolution change.
type TransitionError struct {
	Entity string
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap lets errors.Is match ErrIllegalTransition.
func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

type violations []Violation

func (v *violations) add(field, format string, args ...interface{}) {
	*v = append(*v, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v violations) err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Violations: v}
}
