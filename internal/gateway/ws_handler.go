package gateway

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/jobchat/pkg/protocol"
)

// HandleHertzConnection authenticates the handshake and upgrades it to a push channel
func (s *WsServer) HandleHertzConnection(ctx context.Context, c *app.RequestContext, upgrader *websocket.HertzUpgrader) {
	if s.onlineConnNum.Load() >= s.maxConnNum {
		c.String(consts.StatusServiceUnavailable, "connection limit exceeded")
		return
	}

	token := c.Query(protocol.QueryToken)
	sendId := c.Query(protocol.QuerySendId)
	sdkType := c.Query(protocol.QuerySDKType)

	if token == "" {
		c.String(consts.StatusBadRequest, "missing required parameters")
		return
	}

	claims, err := s.verifier.ValidateToken(ctx, token)
	if err != nil {
		log.CtxDebug(ctx, "token validation failed: send_id=%s, error=%v", sendId, err)
		c.String(consts.StatusUnauthorized, "unauthorized")
		return
	}
	if err := claims.Owns(sendId); err != nil {
		log.CtxDebug(ctx, "handshake user mismatch: send_id=%s, token_user_id=%s", sendId, claims.UserId)
		c.String(consts.StatusUnauthorized, "unauthorized")
		return
	}

	err = upgrader.Upgrade(c, func(conn *websocket.Conn) {
		connId := uuid.New().String()
		client := NewClient(newHertzConn(conn, s.cfg.WebSocket), claims.UserId, claims.PlatformId, sdkType, token, connId, s)

		s.registerChan <- client

		// Blocks until the connection ends
		client.readLoop()
	})
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
	}
}
