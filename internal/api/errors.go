package api

import (
	"errors"
	"fmt"
	"strings"
)

// TransportError covers requests that never produced a usable response:
// connection failures, rejected requests and unreadable bodies.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	msg := "unknown failure"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return "Network error: " + msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// ApplicationError is an ok:false response. Its text is the server's error
// string verbatim.
type ApplicationError struct {
	Op      string
	Message string
}

func (e *ApplicationError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return "Unknown"
	}
	return e.Message
}

// DegradedError marks a failure of an auxiliary feature (preview, layout
// inspection, recommendations, chart render). Callers contain it to that
// feature.
type DegradedError struct {
	Feature string
	Err     error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Feature, e.Err)
}

func (e *DegradedError) Unwrap() error { return e.Err }

func degrade(feature string, err error) error {
	if err == nil {
		return nil
	}
	return &DegradedError{Feature: feature, Err: err}
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func IsApplication(err error) bool {
	var ae *ApplicationError
	return errors.As(err, &ae)
}

func IsDegraded(err error) bool {
	var de *DegradedError
	return errors.As(err, &de)
}
