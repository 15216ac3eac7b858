package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/llm"
	"github.com/tidwall/gjson"
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 4096
	wsBufferSize       = 1024
	incomingBufferSize = 8
)

// Spoken on the first and second idle expiry.
const (
	idleReminder = "Are you still there?"
	idleGoodbye  = "I'll leave you for now. Have a nice day!"
)

// Frame types exchanged over /ws.
const (
	FrameUser      = "user"
	FrameAssistant = "assistant"
	FrameError     = "error"
	FrameEnd       = "end"
)

type Frame struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	CallID string `json:"call_id,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket runs one call over one connection. Client frames are
// caller utterances; the agent's replies come back as assistant frames.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	contactID := strings.TrimSpace(r.URL.Query().Get("contactId"))
	callID := uuid.NewString()
	logger := s.logger.With().Str("session_id", callID).Str("correlation_id", contactID).Logger()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if contactID == "" {
		logger.Warn().Msg("no contactId on websocket call; CRM sync will be skipped")
	}

	call, err := s.dialer.Dial(ctx, callID, contactID)
	if err != nil {
		logger.Error().Err(err).Msg("dial failed")
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(Frame{Type: FrameError, Text: "could not start call"})
		_ = conn.Close()
		return
	}

	s.calls.Upsert(callID, s.now(), func(rec *CallRecord) {
		rec.Transport = "websocket"
		rec.ContactID = contactID
	})

	client := &wsClient{
		conn:        conn,
		call:        call,
		callID:      callID,
		idleTimeout: s.idleTimeout,
		logger:      logger,
	}
	client.run(ctx)

	ended := s.now().UTC()
	s.calls.Upsert(callID, ended, func(rec *CallRecord) {
		rec.EndedAt = &ended
	})
}

type wsClient struct {
	conn        *websocket.Conn
	call        Call
	callID      string
	idleTimeout time.Duration
	logger      zerolog.Logger
}

func (c *wsClient) run(ctx context.Context) {
	defer func() {
		c.call.Hangup(context.WithoutCancel(ctx))
		_ = c.conn.Close()
		c.logger.Info().Msg("websocket call closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if !c.sendReply(c.call.Greeting()) {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	incoming := make(chan string, incomingBufferSize)
	done := make(chan struct{})
	defer close(done)
	go c.readMessages(incoming, done)

	var (
		idle        *time.Timer
		idleC       <-chan time.Time
		idlePrompts int
	)
	if c.idleTimeout > 0 {
		idle = time.NewTimer(c.idleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}

	for {
		select {
		case text, ok := <-incoming:
			if !ok {
				return
			}
			if !c.handleUtterance(ctx, text) {
				return
			}
			if idle != nil {
				idlePrompts = 0
				idle.Reset(c.idleTimeout)
			}

		case <-idleC:
			idlePrompts++
			if !c.handleIdle(idlePrompts) {
				return
			}
			idle.Reset(c.idleTimeout)

		case <-ticker.C:
			if !c.sendPing() {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (c *wsClient) readMessages(incoming chan<- string, done <-chan struct{}) {
	defer close(incoming)
	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		text := ParseUtterance(message)
		if text == "" {
			continue
		}
		select {
		case incoming <- text:
		case <-done:
			return
		}
	}
}

// ParseUtterance accepts either a {"type":"user","text":...} frame or a bare
// text payload.
func ParseUtterance(message []byte) string {
	if gjson.ValidBytes(message) {
		parsed := gjson.ParseBytes(message)
		if parsed.IsObject() {
			if t := parsed.Get("type").String(); t != "" && t != FrameUser {
				return ""
			}
			return strings.TrimSpace(parsed.Get("text").String())
		}
	}
	return strings.TrimSpace(string(message))
}

// handleUtterance returns false once the connection should close.
func (c *wsClient) handleUtterance(ctx context.Context, text string) bool {
	reply, err := c.call.HandleUserMessage(ctx, text)
	switch {
	case errors.Is(err, contractx.ErrSessionEnded):
		c.write(Frame{Type: FrameEnd, CallID: c.callID})
		return false
	case err != nil:
		c.logger.Warn().Err(err).Msg("turn failed")
		if !c.write(Frame{Type: FrameError, Text: "sorry, something went wrong on my end"}) {
			return false
		}
	}
	return c.sendReply(reply)
}

// handleIdle nudges a silent caller once, then says goodbye and ends the
// call. It returns false once the connection should close.
func (c *wsClient) handleIdle(prompts int) bool {
	if prompts == 1 {
		c.logger.Info().Msg("caller idle; reminding")
		return c.write(Frame{Type: FrameAssistant, Text: idleReminder})
	}
	c.logger.Info().Msg("caller idle; ending call")
	c.sendReply(llm.Reply{Messages: []string{idleGoodbye}, Ended: true})
	return false
}

func (c *wsClient) sendReply(reply llm.Reply) bool {
	for _, msg := range reply.Messages {
		if !c.write(Frame{Type: FrameAssistant, Text: msg}) {
			return false
		}
	}
	if reply.Ended {
		c.write(Frame{Type: FrameEnd, CallID: c.callID})
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"))
		return false
	}
	return true
}

func (c *wsClient) write(f Frame) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(f); err != nil {
		c.logger.Warn().Err(err).Str("frame", f.Type).Msg("websocket write failed")
		return false
	}
	return true
}

func (c *wsClient) sendPing() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil) == nil
}
