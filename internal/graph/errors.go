package graph

import "errors"

// Validation failures raised by the Store. All are local and synchronous;
// callers match them with errors.Is.
var (
	ErrNodeNotFound      = errors.New("node not found")
	ErrEdgeNotFound      = errors.New("edge not found")
	ErrInvalidVariant    = errors.New("invalid variant")
	ErrPayloadMismatch   = errors.New("payload mismatch")
	ErrInvalidConnection = errors.New("invalid connection")
	ErrCannotDeleteStart = errors.New("cannot delete start node")
	ErrInvalidSnapshot   = errors.New("invalid snapshot")
)
