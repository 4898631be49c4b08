package ws

import (
	"context"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	"spool/server/internal/entity"
	"spool/server/internal/hub"
	"spool/server/internal/net/proto"
	"spool/server/internal/telemetry"
	"spool/server/logging"
	"spool/server/logging/network"
)

// Hub is the part of the connection manager the websocket transport drives.
type Hub interface {
	Join(conn hub.Conn) (string, error)
	Leave(connID, reason string) error
	KeyInput(connID string, input proto.KeyInput) error
	PointerInput(connID string, payload any) error
	RequestObject(connID string, ref entity.Ref) error
	Codec() proto.Codec
}

type HandlerConfig struct {
	Logger    telemetry.Logger
	Publisher logging.Publisher
	// SendQueue bounds frames buffered per connection.
	SendQueue      int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		SendQueue:      256,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 64 << 10,
	}
}

type Handler struct {
	hub      Hub
	cfg      HandlerConfig
	logger   telemetry.Logger
	pub      logging.Publisher
	upgrader websocket.Upgrader
}

func NewHandler(h Hub, cfg HandlerConfig) *Handler {
	def := DefaultHandlerConfig()
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = def.SendQueue
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      h,
		cfg:      cfg,
		logger:   logger,
		pub:      pub,
		upgrader: upgrader,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed: %v", err)
		return
	}

	codec := h.hub.Codec()
	pingPeriod := h.cfg.PongWait * 9 / 10
	s := newSession(conn, h.cfg.SendQueue, codec.Binary(), h.cfg.WriteWait, pingPeriod)
	go s.writePump()

	id, err := h.hub.Join(s)
	if err != nil {
		h.logger.Printf("join rejected: %v", err)
		s.Close()
		return
	}
	h.readPump(r.Context(), id, conn, codec)
}

func (h *Handler) readPump(ctx context.Context, id string, conn *websocket.Conn, codec proto.Codec) {
	defer h.hub.Leave(id, "disconnect")

	conn.SetReadLimit(h.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	actor := logging.ConnectionRef(id)
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		in, err := codec.Decode(payload)
		if err != nil {
			h.malformed(ctx, actor, "", len(payload), err)
			continue
		}
		switch in.Type {
		case proto.TypeKeyInput:
			var input proto.KeyInput
			if err := codec.DecodeData(in.Data, &input); err != nil {
				h.malformed(ctx, actor, in.Type, len(payload), err)
				continue
			}
			err = h.hub.KeyInput(id, input)
		case proto.TypePointerInput:
			var pointer any
			if err := codec.DecodeData(in.Data, &pointer); err != nil {
				h.malformed(ctx, actor, in.Type, len(payload), err)
				continue
			}
			err = h.hub.PointerInput(id, pointer)
		case proto.TypeGetObject:
			var req proto.ObjectRequest
			if err := codec.DecodeData(in.Data, &req); err != nil {
				h.malformed(ctx, actor, in.Type, len(payload), err)
				continue
			}
			err = h.hub.RequestObject(id, req.Ref())
		default:
			continue
		}
		if err != nil {
			h.logger.Printf("dropping %s from %s: %v", in.Type, id, err)
		}
	}
}

func (h *Handler) malformed(ctx context.Context, actor logging.EntityRef, channel string, size int, err error) {
	h.logger.Printf("discarding malformed message from %s: %v", actor.ID, err)
	network.MalformedFrame(ctx, h.pub, 0, actor, network.MalformedFramePayload{
		Channel: channel,
		Bytes:   size,
		Error:   err.Error(),
	}, nil)
}
