package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/campuschat/internal/config"
	"github.com/vovakirdan/campuschat/internal/core"
	"github.com/vovakirdan/campuschat/internal/proto"
	"github.com/vovakirdan/campuschat/internal/utils"
)

const handshakeTimeout = 10 * time.Second

var (
	errSlowConsumer   = errors.New("connection fell behind, resync from history")
	errServerShutdown = errors.New("server shutting down")
)

// WSHandler upgrades HTTP connections and bridges them to core.Conn.
type WSHandler struct {
	hub *core.Hub
	cfg *config.Config
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	connID := utils.NewID()
	client, err := h.handshake(ctx, conn, connID, upgradeToken(r))
	if err != nil {
		h.log.Debug().Err(err).Str("conn_id", connID).Msg("ws handshake failed")
		conn.Close(websocket.StatusPolicyViolation, core.AsCoreError(err).Code)
		return
	}
	defer h.hub.Unregister(connID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status, reason := closeStatus(err)
	if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
		h.log.Warn().Err(err).Str("conn_id", connID).Str("user_id", client.UserID).Msg("ws connection closed with error")
	}
	conn.Close(status, reason)
}

func closeStatus(err error) (websocket.StatusCode, string) {
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
		return websocket.StatusNormalClosure, "closing"
	case errors.Is(err, errSlowConsumer):
		return websocket.StatusTryAgainLater, "resync required"
	case errors.Is(err, errServerShutdown):
		return websocket.StatusGoingAway, "server shutting down"
	}
	if s := websocket.CloseStatus(err); s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway {
		return s, "closing"
	}
	return websocket.StatusInternalError, err.Error()
}

// upgradeToken returns a token sent with the upgrade request, if any.
// Browsers cannot set headers on WebSocket requests, hence the query fallback.
func upgradeToken(r *stdhttp.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return r.URL.Query().Get("token")
}

// handshake authenticates the connection, either with the upgrade token or
// with the first frame, which must be a hello. It writes the welcome ack or
// the error before returning.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn, connID, token string) (*core.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	requestID := ""
	if token == "" {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return nil, err
		}
		requestID = inbound.ID

		var hello proto.HelloData
		if inbound.Type != proto.InboundTypeHello {
			return nil, h.writeHandshakeError(ctx, conn, requestID, core.ErrUnauthenticated)
		}
		if err := proto.Decode(inbound.Data, &hello); err != nil {
			return nil, h.writeHandshakeError(ctx, conn, requestID, core.ErrUnauthenticated)
		}
		if err := checkProtocol(hello.Protocol); err != nil {
			return nil, h.writeHandshakeError(ctx, conn, requestID, err)
		}
		token = hello.Token
	}

	client, err := h.hub.Register(ctx, connID, token)
	if err != nil {
		return nil, h.writeHandshakeError(ctx, conn, requestID, err)
	}

	welcome := proto.Outbound{
		Type: proto.OutboundTypeAck,
		ID:   requestID,
		Data: proto.Welcome{
			UserID:       client.UserID,
			Name:         client.Name,
			ConnectionID: client.ID,
			Protocol:     proto.ProtocolVersion,
		},
	}
	if err := wsjson.Write(ctx, conn, welcome); err != nil {
		h.hub.Unregister(connID)
		return nil, err
	}
	return client, nil
}

func (h *WSHandler) writeHandshakeError(ctx context.Context, conn *websocket.Conn, requestID string, err error) error {
	ce := core.AsCoreError(err)
	out := outboundFromEvent(core.ErrorEvent(requestID, "", ce))
	if writeErr := wsjson.Write(ctx, conn, out); writeErr != nil {
		h.log.Debug().Err(writeErr).Msg("write handshake error")
	}
	return ce
}

func checkProtocol(version int) error {
	if version != 0 && version != proto.ProtocolVersion {
		return &core.CoreError{Code: core.ErrCodeUnsupportedVersion, Message: "unsupported protocol version"}
	}
	return nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("malformed inbound frame")
			client.Deliver(core.ErrorEvent("", "", core.BadRequest("malformed frame")))
			continue
		}
		h.dispatch(ctx, client, limiter, inbound)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn) error {
	for {
		select {
		case event := <-client.Events():
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			switch client.Reason() {
			case core.CloseSlowConsumer:
				h.log.Warn().Str("conn_id", client.ID).Str("user_id", client.UserID).Msg("dropping slow consumer")
				return errSlowConsumer
			case core.CloseShutdown:
				return errServerShutdown
			default:
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
