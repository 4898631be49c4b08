package hub

import (
	"spool/server/internal/engine"
	"spool/server/internal/entity"
	"spool/server/internal/net/proto"
)

type commandKind uint8

const (
	commandJoin commandKind = iota + 1
	commandLeave
	commandKeyInput
	commandPointerInput
	commandGetObject
	commandMutate
	commandDo
	commandBroadcast
	commandReset
)

func (k commandKind) String() string {
	switch k {
	case commandJoin:
		return "join"
	case commandLeave:
		return "leave"
	case commandKeyInput:
		return "key_input"
	case commandPointerInput:
		return "pointer_input"
	case commandGetObject:
		return "get_object"
	case commandMutate:
		return "mutate"
	case commandDo:
		return "do"
	case commandBroadcast:
		return "broadcast"
	case commandReset:
		return "reset"
	default:
		return "unknown"
	}
}

// lifecycle commands are never dropped when the buffer is full.
func (k commandKind) lifecycle() bool {
	switch k {
	case commandKeyInput, commandPointerInput, commandGetObject, commandMutate:
		return false
	default:
		return true
	}
}

// command is a unit of work handed from transport goroutines to the loop.
type command struct {
	kind     commandKind
	connID   string
	conn     Conn
	reason   string
	key      proto.KeyInput
	pointer  any
	ref      entity.Ref
	mutate   func(entity.Entity)
	do       func(*engine.Handler) error
	envelope proto.Envelope
	result   chan error
}
