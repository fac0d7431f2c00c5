package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // same policy as the CORS headers
	},
}

// socketError is sent in place of a response when a message fails.
type socketError struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// PredictSocket serves /api/ws/predict. Each text message is a live request
// ({frame, prevSequence}) and is answered with one response message. The
// connection itself holds no sequence.
type PredictSocket struct {
	session  *session.Handler
	maxBytes int64
}

// NewPredictSocket returns a WebSocket handler backed by h.
func NewPredictSocket(h *session.Handler, maxBytes int64) *PredictSocket {
	return &PredictSocket{session: h, maxBytes: maxBytes}
}

// ServeHTTP upgrades the connection and answers messages until the client leaves.
func (p *PredictSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if p.maxBytes > 0 {
		conn.SetReadLimit(p.maxBytes)
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("predict socket closed", "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		if err := conn.WriteJSON(p.answer(r, data)); err != nil {
			slog.Debug("predict socket write failed", "error", err)
			return
		}
	}
}

func (p *PredictSocket) answer(r *http.Request, data []byte) any {
	req, err := api.DecodeLiveRequest(bytes.NewReader(data))
	if err != nil {
		return fail(err)
	}
	src, err := req.Source()
	if err != nil {
		return fail(err)
	}
	resp, err := p.session.Handle(r.Context(), src)
	if err != nil {
		return fail(err)
	}
	return resp
}

func fail(err error) socketError {
	status := api.StatusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("socket predict failed", "status", status, "error", err)
	}
	return socketError{Error: err.Error(), Status: status}
}

// verdictMessage is broadcast to /api/ws/verdicts subscribers.
type verdictMessage struct {
	ID            string             `json:"id"`
	Mode          string             `json:"mode"`
	Action        *string            `json:"action"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"all_probabilities"`
	Timestamp     int64              `json:"timestamp"`
}

func newVerdictMessage(out session.Outcome) verdictMessage {
	msg := verdictMessage{
		ID:            out.ID,
		Mode:          string(out.Mode),
		Confidence:    out.Verdict.Confidence,
		Probabilities: out.Verdict.Probabilities,
		Timestamp:     out.At.UnixMilli(),
	}
	if out.Verdict.Recognized() {
		action := out.Verdict.Action
		msg.Action = &action
	}
	return msg
}

// marshalVerdict encodes out for subscribers.
func marshalVerdict(out session.Outcome) ([]byte, error) {
	return json.Marshal(newVerdictMessage(out))
}
