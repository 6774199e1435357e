package core

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrUnknownChannel     = errors.New("unknown channel")
	ErrChannelEmpty       = errors.New("channel has not been loaded yet")
	ErrReadOnlyChannel    = errors.New("the sample channel cannot be replaced")
	ErrIngestInProgress   = errors.New("an ingestion is already running for this channel")
	ErrAnalysisInProgress = errors.New("an analysis is already running for this session")
)

// ConfigurationError reports caller input rejected before any network call.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return e.Msg }

// RemoteError reports a failed request or a non-success status from the
// remote record endpoint.
type RemoteError struct {
	StatusCode int // 0 when no response was received
	Msg        string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *RemoteError) Unwrap() error { return e.Err }

// NoDataError reports a successful response that carried no records.
type NoDataError struct{}

func (e *NoDataError) Error() string { return "No student records found." }
