package proto

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"spool/server/internal/engine"
	"spool/server/internal/entity"
)

func TestJSONEncodeUsesWireNames(t *testing.T) {
	frame, err := JSONCodec{}.Encode(Envelope{
		Type: TypeAssignID,
		Data: AssignIDPayload{ClientID: "c1", ClientObject: entity.Ref{Type: entity.TypePlayer, ID: "c1"}},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(frame, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != TypeAssignID {
		t.Fatalf("unexpected type %v", decoded["type"])
	}
	data := decoded["data"].(map[string]any)
	object := data["clientObject"].(map[string]any)
	if data["clientId"] != "c1" || object["objectType"] != entity.TypePlayer {
		t.Fatalf("unexpected payload %v", data)
	}
}

func TestJSONDecodeIsPermissive(t *testing.T) {
	codec := JSONCodec{}
	in, err := codec.Decode([]byte(`{"type":"KEY_INPUT","data":{"inputId":"left","value":true,"extra":1},"junk":2}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var key KeyInput
	if err := codec.DecodeData(in.Data, &key); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if in.Type != TypeKeyInput || key.InputID != "left" || !key.Value {
		t.Fatalf("unexpected inbound %+v %+v", in, key)
	}

	if _, err := codec.Decode([]byte(`{"data":{}}`)); !errors.Is(err, ErrMissingType) {
		t.Fatalf("expected ErrMissingType, got %v", err)
	}
	if _, err := codec.Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected malformed frame to fail")
	}
}

func TestMsgpackRoundTripsInbound(t *testing.T) {
	codec := MsgpackCodec{}
	frame, err := codec.Encode(Envelope{Type: TypeGetObject, Data: ObjectRequest{ObjectType: entity.TypePoint, ID: "1"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	in, err := codec.Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var req ObjectRequest
	if err := codec.DecodeData(in.Data, &req); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if in.Type != TypeGetObject || req.Ref() != (entity.Ref{Type: entity.TypePoint, ID: "1"}) {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestMsgpackEncodesBatchesWithJSONKeys(t *testing.T) {
	frame, err := MsgpackCodec{}.Encode(Envelope{
		Type: TypeUpdate,
		Data: UpdatePayload{Objects: engine.Batches{entity.TypePoint: {{"id": "1", "x": 5.0}}}, Tick: 9},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded map[string]any
	if err := msgpack.Unmarshal(frame, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	data := decoded["data"].(map[string]any)
	if _, ok := data["objects"]; !ok {
		t.Fatalf("expected json-tagged keys, got %v", data)
	}
	if _, ok := data["owner"]; ok {
		t.Fatalf("expected omitempty to apply, got %v", data)
	}
}

func TestCodecByName(t *testing.T) {
	for _, name := range []string{"", CodecJSON, CodecMsgpack} {
		if _, err := CodecByName(name); err != nil {
			t.Fatalf("CodecByName(%q): %v", name, err)
		}
	}
	if _, err := CodecByName("xml"); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("expected ErrUnknownCodec, got %v", err)
	}
}

func TestObjectRequestAcceptsNumericIDs(t *testing.T) {
	codec := JSONCodec{}
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{name: "string", frame: `{"type":"GET_OBJECT","data":{"objectType":"POINT","id":"1"}}`, want: "1"},
		{name: "integer", frame: `{"type":"GET_OBJECT","data":{"objectType":"POINT","id":1}}`, want: "1"},
		{name: "large integer", frame: `{"type":"GET_OBJECT","data":{"objectType":"POINT","id":12345678901234}}`, want: "12345678901234"},
		{name: "fraction", frame: `{"type":"GET_OBJECT","data":{"objectType":"POINT","id":1.5}}`, want: "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := codec.Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			var req ObjectRequest
			if err := codec.DecodeData(in.Data, &req); err != nil {
				t.Fatalf("decode data: %v", err)
			}
			if req.Ref() != (entity.Ref{Type: entity.TypePoint, ID: tt.want}) {
				t.Fatalf("unexpected ref %+v", req.Ref())
			}
		})
	}

	in, _ := codec.Decode([]byte(`{"type":"GET_OBJECT","data":{"objectType":"POINT","id":{"nested":true}}}`))
	var req ObjectRequest
	if err := codec.DecodeData(in.Data, &req); err == nil {
		t.Fatalf("expected an object id to be rejected")
	}
}

func TestMsgpackObjectRequestAcceptsNumericIDs(t *testing.T) {
	codec := MsgpackCodec{}
	frame, err := codec.Encode(Envelope{Type: TypeGetObject, Data: map[string]any{"objectType": entity.TypePoint, "id": 7}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	in, err := codec.Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var req ObjectRequest
	if err := codec.DecodeData(in.Data, &req); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if req.Ref() != (entity.Ref{Type: entity.TypePoint, ID: "7"}) {
		t.Fatalf("unexpected ref %+v", req.Ref())
	}
}
