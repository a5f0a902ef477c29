package services

import (
	"errors"
	"fmt"
	"strings"

	"atelier/internal/jobs"
)

// Failure markers. Pre-flight markers (validation, quota, chain) are returned
// synchronously and never reach the job registry; post-dispatch markers
// (credential, transport) always end in an error job.
var (
	ErrValidation    = errors.New("validation error")
	ErrQuota         = errors.New("insufficient credits")
	ErrChain         = errors.New("chain error")
	ErrCredential    = errors.New("credential error")
	ErrTransport     = errors.New("transport error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureKind maps a post-dispatch failure to the error kind recorded on the job.
func FailureKind(err error) jobs.ErrorKind {
	if errors.Is(err, ErrCredential) {
		return jobs.ErrorKindCredential
	}
	return jobs.ErrorKindTransport
}

// IsPreflight reports whether err is a synchronous rejection that leaves no job behind.
func IsPreflight(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrQuota) || errors.Is(err, ErrChain)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
