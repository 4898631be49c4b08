package hub

import (
	"errors"

	"spool/server/internal/entity"
)

var (
	// ErrHubRunning indicates Run was called twice.
	ErrHubRunning = errors.New("hub: already running")
	// ErrHubClosed indicates the hub loop has exited.
	ErrHubClosed = errors.New("hub: closed")
	// ErrQueueFull indicates an input command was dropped because the command
	// buffer is saturated.
	ErrQueueFull = errors.New("hub: command queue full")
	// ErrNilConn indicates Join was called without a connection.
	ErrNilConn = errors.New("hub: connection is nil")
)

// Conn is the outbound side of a client transport. Send must not block: it
// queues the frame or fails immediately.
type Conn interface {
	Send(frame []byte) error
	Close() error
}

type connection struct {
	id    string
	conn  Conn
	owner entity.Ref
}
