package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/config"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/metrics"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/application"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/domain"
	"gitlab.com/supernavi/api/navi-bridge-service/pkg/contextkeys"
	"gitlab.com/supernavi/api/navi-bridge-service/pkg/safego"
)

// Handler upgrades bridge connections and relays navi.v1 operation messages
// between the UI layer and the request coordinator. Operations run
// concurrently: a slow status resolution must not block a case_changed pointer
// update arriving behind it — that ordering is exactly what stale-result
// suppression exists for.
type Handler struct {
	logger         domain.Logger
	configProvider config.Provider
	coordinator    *application.RequestCoordinator
}

// NewHandler creates a new bridge WebSocket Handler.
func NewHandler(logger domain.Logger, cfgProvider config.Provider, coordinator *application.RequestCoordinator) *Handler {
	return &Handler{
		logger:         logger,
		configProvider: cfgProvider,
		coordinator:    coordinator,
	}
}

// ServeHTTP is the entry point for bridge WebSocket upgrade requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{"navi.v1"},
	})
	if err != nil {
		h.logger.Error(r.Context(), "WebSocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	connCtx, cancel := context.WithCancel(r.Context())
	defer cancel()

	metrics.IncrementActiveConnections()
	defer metrics.DecrementActiveConnections()

	h.logger.Info(connCtx, "Bridge connection established",
		"remote_addr", r.RemoteAddr, "subprotocol", conn.Subprotocol())

	writer := &connWriter{conn: conn, logger: h.logger}
	if err := writer.send(connCtx, domain.NewReadyMessage()); err != nil {
		h.logger.Warn(connCtx, "Failed to send ready message", "error", err.Error())
		conn.Close(websocket.StatusInternalError, "failed to greet")
		return
	}

	h.readLoop(connCtx, conn, writer)
	conn.Close(domain.StatusGoingAway, "bridge closing")
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, writer *connWriter) {
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == domain.StatusGoingAway || errors.Is(err, context.Canceled) {
				h.logger.Info(ctx, "Bridge connection closed", "close_status", fmt.Sprintf("%d", status))
			} else {
				h.logger.Warn(ctx, "Bridge connection read failed", "error", err.Error())
			}
			return
		}
		if msgType != websocket.MessageText {
			h.logger.Warn(ctx, "Ignoring non-text message on bridge connection")
			continue
		}

		var req domain.OpRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.logger.Warn(ctx, "Malformed operation envelope", "error", err.Error())
			writer.send(ctx, domain.NewErrorResult("", "",
				domain.NewErrorResponse(domain.ErrCodeBadRequest, "Malformed operation envelope.", err.Error())))
			continue
		}
		if req.ID == "" && req.Type != domain.OpCaseChanged {
			// Correlation is required for anything that expects a reply.
			req.ID = uuid.NewString()
		}

		reqCtx := context.WithValue(ctx, contextkeys.RequestIDKey, req.ID)
		safego.Execute(reqCtx, h.logger, fmt.Sprintf("BridgeOp-%s", req.Type), func() {
			result := h.coordinator.Handle(reqCtx, req)
			if result == nil {
				return
			}
			if err := writer.send(reqCtx, *result); err != nil {
				h.logger.Warn(reqCtx, "Failed to deliver operation result", "op", req.Type, "error", err.Error())
			}
		})
	}
}

// connWriter serializes writes from concurrent operation goroutines onto one connection.
type connWriter struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger domain.Logger
}

func (w *connWriter) send(ctx context.Context, msg domain.OpResult) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.Write(ctx, websocket.MessageText, payload)
}
