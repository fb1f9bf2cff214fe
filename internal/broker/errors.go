package broker

import "errors"

var (
	// ErrConnection reports that the bus could not be reached or the link dropped.
	ErrConnection = errors.New("broker connection error")
	// ErrChannelNotInitialized is returned by operations attempted before Connect
	// succeeded, or while a reconnect is in progress.
	ErrChannelNotInitialized = errors.New("broker channel not initialized")
	// ErrGaveUp is returned once the reconnect policy is exhausted.
	ErrGaveUp = errors.New("broker reconnect attempts exhausted")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("broker connection closed")
	// ErrExchangeKindMismatch is returned when an exchange is redeclared with another kind.
	ErrExchangeKindMismatch = errors.New("exchange already declared with a different kind")
	// ErrInvalidPattern is returned for empty binding patterns.
	ErrInvalidPattern = errors.New("invalid binding pattern")
)
