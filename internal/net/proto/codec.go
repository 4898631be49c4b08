package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrMissingType indicates an inbound frame without a channel name.
	ErrMissingType = errors.New("proto: frame has no type")
	// ErrUnknownCodec indicates a codec name that is not registered.
	ErrUnknownCodec = errors.New("proto: unknown codec")
)

// Codec converts envelopes to and from wire frames.
type Codec interface {
	Name() string
	// Binary reports whether frames must be sent as binary messages.
	Binary() bool
	Encode(Envelope) ([]byte, error)
	Decode(frame []byte) (Inbound, error)
	// DecodeData decodes an Inbound payload into v. Unknown fields are ignored.
	DecodeData(data []byte, v any) error
}

// Codec names.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// CodecByName resolves a configured codec.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// JSONCodec speaks text frames.
type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecJSON }

func (JSONCodec) Binary() bool { return false }

func (JSONCodec) Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (JSONCodec) Decode(frame []byte) (Inbound, error) {
	var raw struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &raw); err != nil {
		return Inbound{}, fmt.Errorf("decode json frame: %w", err)
	}
	if raw.Type == "" {
		return Inbound{}, ErrMissingType
	}
	return Inbound{Type: raw.Type, Data: raw.Data}, nil
}

func (JSONCodec) DecodeData(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// MsgpackCodec speaks binary frames. Field names follow the json tags so both
// codecs share one schema.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return CodecMsgpack }

func (MsgpackCodec) Binary() bool { return true }

func (MsgpackCodec) Encode(env Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c MsgpackCodec) Decode(frame []byte) (Inbound, error) {
	var raw struct {
		Type string             `json:"type"`
		Data msgpack.RawMessage `json:"data"`
	}
	if err := c.DecodeData(frame, &raw); err != nil {
		return Inbound{}, fmt.Errorf("decode msgpack frame: %w", err)
	}
	if raw.Type == "" {
		return Inbound{}, ErrMissingType
	}
	return Inbound{Type: raw.Type, Data: raw.Data}, nil
}

func (MsgpackCodec) DecodeData(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
