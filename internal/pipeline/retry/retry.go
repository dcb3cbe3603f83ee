package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"
)

type Class string

const (
	ClassTerminal  Class = "terminal"
	ClassTransient Class = "transient"
)

type Decision struct {
	Class  Class
	Reason string
}

func (d Decision) IsTransient() bool {
	return d.Class == ClassTransient
}

type classifiedError struct {
	err    error
	class  Class
	reason string
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

// Transient marks an error as retryable regardless of its type.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTransient, reason: "explicit_transient"}
}

// Terminal marks an error as non-retryable regardless of its type.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTerminal, reason: "explicit_terminal"}
}

// StatusError carries an HTTP status from a collaborator API so Classify can
// distinguish throttling and server faults from permanent request errors.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
}

// Classify decides whether an error from a chain RPC, explorer API, or other
// collaborator is worth retrying.
func Classify(err error) Decision {
	if err == nil {
		return Decision{Class: ClassTerminal, Reason: "nil_error"}
	}

	var marked *classifiedError
	if errors.As(err, &marked) {
		return Decision{Class: marked.class, Reason: marked.reason}
	}

	if errors.Is(err, context.Canceled) {
		return Decision{Class: ClassTerminal, Reason: "context_canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Class: ClassTransient, Reason: "deadline_exceeded"}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Status == 429 || statusErr.Status >= 500 {
			return Decision{Class: ClassTransient, Reason: "http_status"}
		}
		return Decision{Class: ClassTerminal, Reason: "http_status"}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Decision{Class: ClassTransient, Reason: "net_timeout"}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return Decision{Class: ClassTransient, Reason: "url_error"}
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"connection refused", "connection reset", "broken pipe", "no such host", "i/o timeout", "eof"} {
		if strings.Contains(msg, fragment) {
			return Decision{Class: ClassTransient, Reason: "connectivity"}
		}
	}

	return Decision{Class: ClassTerminal, Reason: "unclassified"}
}

// Policy bounds retry behavior: a fixed number of attempts with a fixed
// backoff between them.
type Policy struct {
	Attempts int
	Backoff  time.Duration
}

// Do runs fn up to p.Attempts times, sleeping p.Backoff between transient
// failures. Terminal errors return immediately. Exhausting all attempts
// returns the last error wrapped with the operation name.
func Do(ctx context.Context, p Policy, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		decision := Classify(lastErr)
		if !decision.IsTransient() {
			return fmt.Errorf("%s: %w", op, lastErr)
		}

		if attempt < p.Attempts {
			logger.Warn("transient failure, retrying",
				"op", op, "attempt", attempt, "reason", decision.Reason, "error", lastErr)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(p.Backoff):
			}
		}
	}

	return fmt.Errorf("%s: retries exhausted after %d attempts: %w", op, p.Attempts, lastErr)
}
