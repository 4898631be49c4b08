package proto

import (
	"spool/server/internal/engine"
	"spool/server/internal/entity"
)

// Version tracks the wire-protocol revision expected by clients.
const Version = 1

// Server to client channels.
const (
	TypeInit       = "INIT"
	TypeUpdate     = "UPDATE"
	TypeRemove     = "REMOVE"
	TypeAssignID   = "ASSIGN_ID"
	TypeLoading    = "LOADING"
	TypeSendObject = "SEND_OBJECT"
	TypeReset      = "RESET"
)

// Client to server channels.
const (
	TypeKeyInput     = "KEY_INPUT"
	TypePointerInput = "POINTER_INPUT"
	TypeGetObject    = "GET_OBJECT"
)

// Envelope is the outbound frame shape: a channel name and its payload.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Inbound is a decoded client frame whose payload is still encoded.
type Inbound struct {
	Type string
	Data []byte
}

// InitPayload carries full snapshots grouped by type. ResetHandler tells the
// client to discard everything it knew before applying Objects.
type InitPayload struct {
	Objects      engine.Batches `json:"objects"`
	ResetHandler bool           `json:"resetHandler,omitempty"`
}

// UpdatePayload carries one tick's diff batches. Owner marks the batches
// restricted to the receiving connection.
type UpdatePayload struct {
	Objects engine.Batches `json:"objects"`
	Owner   bool           `json:"owner,omitempty"`
	Tick    uint64         `json:"tick"`
}

// RemovePayload lists removed ids per type.
type RemovePayload struct {
	Objects engine.Removals `json:"objects"`
}

// AssignIDPayload tells a client which connection and entity it controls.
type AssignIDPayload struct {
	ClientID     string     `json:"clientId"`
	ClientObject entity.Ref `json:"clientObject"`
}

// KeyInput toggles one input flag on the sender's owner entity.
type KeyInput struct {
	InputID string `json:"inputId"`
	Value   bool   `json:"value"`
}

// LoadingPayload gates the client while the world is being prepared.
type LoadingPayload struct {
	Loading    bool     `json:"loading"`
	Message    *string  `json:"message,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
}

// ObjectRequest asks the portal for one entity. ID accepts numbers.
type ObjectRequest struct {
	ObjectType string `json:"objectType"`
	ID         ID     `json:"id"`
}

func (r ObjectRequest) Ref() entity.Ref {
	return entity.Ref{Type: r.ObjectType, ID: string(r.ID)}
}

// SendObjectPayload answers a GET_OBJECT and carries later pushes. Object is
// omitted when the entity does not exist.
type SendObjectPayload struct {
	ObjectType string          `json:"objectType"`
	ID         string          `json:"id"`
	Object     entity.Snapshot `json:"object,omitempty"`
}
