package vendors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRetryLimit marks a request that stayed retryable past MaxRetries.
var ErrRetryLimit = errors.New("retry limit exceeded")

// ErrAuth marks credentials that are absent or rejected by the vendor.
// It is never retried.
var ErrAuth = errors.New("authentication rejected")

// StatusError is a non-retryable, non-2xx vendor response. The body is
// carried (bounded, secrets masked) for diagnostics.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("vendor returned status %d: %s", e.Status, e.Body)
}

// ParseError is a 2xx response whose body could not be mapped to
// canonical rows after retries were exhausted.
type ParseError struct {
	Prefix string
	Cause  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse response (%v); body begins: %s", e.Cause, e.Prefix)
}

func (e *ParseError) Unwrap() error { return e.Cause }

const bodyPrefixLimit = 256

// bodyPrefix bounds a response body for inclusion in error text.
func bodyPrefix(body []byte) string {
	var s = string(body)
	if len(s) > bodyPrefixLimit {
		s = s[:bodyPrefixLimit] + "..."
	}
	return s
}

// maskSecrets redacts credential material from any string that may be
// surfaced to the caller.
func maskSecrets(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "***")
	}
	return s
}
