package eventstream

import "errors"

// ErrNilTurnEvent indicates a nil turn event payload was provided to a publisher.
var ErrNilTurnEvent = errors.New("nil turn event")

// ErrPublisherClosed indicates a publish was attempted after Close.
var ErrPublisherClosed = errors.New("eventstream publisher closed")
