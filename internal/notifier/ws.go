// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package notifier

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taibuivan/flowra/internal/platform/sec"
)

// readPollInterval is how often the receive loop checks for a client
// disconnect without blocking shutdown.
const readPollInterval = time.Second

// TokenVerifier checks the signature and expiry of an access token.
// Implemented by the platform token service.
type TokenVerifier interface {
	VerifyAccessToken(tokenString string) (*sec.AuthClaims, error)
}

// Handler upgrades HTTP requests to the token-monitor push channel.
//
// # Session Semantics
//
// Only the token signature is verified here, deliberately skipping the
// session-ledger check: the channel must come up even for a token that is
// seconds from expiry, which is exactly when clients need the warning.
type Handler struct {
	verifier TokenVerifier
	upgrader websocket.Upgrader
	clock    Clock
	logger   *slog.Logger
}

// NewHandler constructs the WebSocket [Handler].
func NewHandler(verifier TokenVerifier, clock Clock, logger *slog.Logger) *Handler {
	return &Handler{
		verifier: verifier,
		clock:    clock,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect cross-origin from the SPA
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

/*
ServeHTTP accepts one monitored connection.

GET /ws/token-monitor?token=…

Description: The bearer token arrives as a query parameter because browser
WebSocket clients cannot set headers. After the upgrade, one monitor
goroutine owns the connection; a short-poll read loop detects disconnects
and cancels it.
*/
func (handler *Handler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {

	token := request.URL.Query().Get("token")
	if token == "" {
		http.Error(writer, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := handler.verifier.VerifyAccessToken(token)
	if err != nil {
		http.Error(writer, "invalid token", http.StatusUnauthorized)
		return
	}

	connection, err := handler.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		handler.logger.WarnContext(request.Context(), "notifier_upgrade_failed",
			slog.String("error", err.Error()),
		)
		return
	}
	defer connection.Close()

	ctx, cancel := context.WithCancel(request.Context())
	defer cancel()

	go handler.watchDisconnect(ctx, cancel, connection)

	monitor := NewMonitor(claims.ExpiresAt.Time, handler.clock, handler.logger)
	err = monitor.Run(ctx, func(notice *Notice) error {
		return connection.WriteJSON(notice)
	})
	if err != nil {
		handler.logger.DebugContext(ctx, "notifier_send_failed",
			slog.String("user_id", claims.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// watchDisconnect reads with a short deadline in a loop. A read error that
// is not a timeout means the client went away; the monitor gets cancelled.
func (handler *Handler) watchDisconnect(ctx context.Context, cancel context.CancelFunc, connection *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = connection.SetReadDeadline(time.Now().Add(readPollInterval))
		if _, _, err := connection.ReadMessage(); err != nil {
			if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
				continue
			}
			cancel()
			return
		}
	}
}
