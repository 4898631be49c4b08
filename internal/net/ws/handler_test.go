package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"spool/server/internal/entity"
	"spool/server/internal/hub"
	"spool/server/internal/net/proto"
	"spool/server/logging/network"
	"spool/server/logging/sinks"
)

type wireFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startServer(t *testing.T, cfg hub.Config, handlerCfg HandlerConfig) (*hub.Hub, *httptest.Server) {
	t.Helper()
	h := hub.New(cfg, hub.Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	handler := NewHandler(h, handlerCfg)
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return h, srv
}

func dial(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()
	parsed, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("failed to parse test server url: %v", err)
	}
	parsed.Scheme = "ws"
	parsed.Path = "/"

	conn, resp, err := websocket.DefaultDialer.Dial(parsed.String(), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		if resp != nil {
			resp.Body.Close()
		}
	})
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, kind string) wireFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("failed waiting for %s: %v", kind, err)
		}
		var f wireFrame
		if err := json.Unmarshal(payload, &f); err != nil {
			t.Fatalf("failed to decode websocket payload: %v", err)
		}
		if f.Type == kind {
			return f
		}
	}
}

func writeFrame(t *testing.T, conn *websocket.Conn, kind string, data any) {
	t.Helper()
	frame, err := proto.JSONCodec{}.Encode(proto.Envelope{Type: kind, Data: data})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHandleJoinsAndAssignsID(t *testing.T) {
	h, srv := startServer(t, hub.DefaultConfig(), HandlerConfig{})
	conn := dial(t, srv.URL)

	readUntil(t, conn, proto.TypeInit)
	assign := readUntil(t, conn, proto.TypeAssignID)
	var payload proto.AssignIDPayload
	if err := json.Unmarshal(assign.Data, &payload); err != nil {
		t.Fatalf("decode assign: %v", err)
	}
	if payload.ClientID == "" || payload.ClientObject.Type != entity.TypePlayer {
		t.Fatalf("unexpected assignment %+v", payload)
	}
	if got := h.Players(); len(got) != 1 || got[0] != payload.ClientID {
		t.Fatalf("expected hub to track the connection, got %v", got)
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitFor(t, "disconnect", func() bool { return h.Connections() == 0 })
}

func TestHandleSurvivesMalformedFramesAndServesObjects(t *testing.T) {
	mem := sinks.NewMemory()
	_, srv := startServer(t, hub.DefaultConfig(), HandlerConfig{Publisher: mem})
	conn := dial(t, srv.URL)

	assign := readUntil(t, conn, proto.TypeAssignID)
	var payload proto.AssignIDPayload
	json.Unmarshal(assign.Data, &payload)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	writeFrame(t, conn, proto.TypeKeyInput, proto.KeyInput{InputID: entity.KeyUp, Value: true})
	writeFrame(t, conn, proto.TypeGetObject, proto.ObjectRequest{ObjectType: payload.ClientObject.Type, ID: proto.ID(payload.ClientObject.ID)})

	object := readUntil(t, conn, proto.TypeSendObject)
	var sent proto.SendObjectPayload
	if err := json.Unmarshal(object.Data, &sent); err != nil {
		t.Fatalf("decode object: %v", err)
	}
	if sent.ID != payload.ClientObject.ID || sent.Object == nil {
		t.Fatalf("unexpected object payload %+v", sent)
	}
	if len(mem.OfType(network.EventMalformedFrame)) != 1 {
		t.Fatalf("expected the malformed frame to be reported")
	}
}

func TestHandleUsesBinaryFramesForMsgpack(t *testing.T) {
	cfg := hub.DefaultConfig()
	cfg.Codec = proto.MsgpackCodec{}
	_, srv := startServer(t, cfg, HandlerConfig{})
	conn := dial(t, srv.URL)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if messageType != websocket.BinaryMessage {
		t.Fatalf("expected binary frame, got %d", messageType)
	}
	in, err := proto.MsgpackCodec{}.Decode(payload)
	if err != nil || in.Type != proto.TypeInit {
		t.Fatalf("expected INIT frame, got %q (%v)", in.Type, err)
	}
}

func TestSessionSendQueueOverflow(t *testing.T) {
	s := newSession(nil, 1, false, time.Second, time.Second)
	if err := s.Send([]byte("a")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := s.Send([]byte("b")); !errors.Is(err, ErrSendQueueFull) {
		t.Fatalf("expected ErrSendQueueFull, got %v", err)
	}
	s.Close()
	s.Close()
	if err := s.Send([]byte("c")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}
