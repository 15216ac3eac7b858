package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/llm"
)

type Config struct {
	Addr              string        `envconfig:"ADDR" default:":7860"`
	ReadHeaderTimeout time.Duration `split_words:"true" default:"10s"`
	ShutdownTimeout   time.Duration `split_words:"true" default:"15s"`
	// IdleTimeout is the caller silence allowed before a reminder, and again
	// before the goodbye. Zero disables idle handling.
	IdleTimeout time.Duration `split_words:"true" default:"15s"`
	// StreamURL is the public websocket URL written into TwiML. Empty means
	// derive it from the request host.
	StreamURL string `split_words:"true"`
}

// Call is a live conversation as the transport sees it.
type Call interface {
	Greeting() llm.Reply
	HandleUserMessage(ctx context.Context, text string) (llm.Reply, error)
	Hangup(ctx context.Context)
}

type Dialer interface {
	Dial(ctx context.Context, sessionID, contactID string) (Call, error)
}

type DialerFunc func(ctx context.Context, sessionID, contactID string) (Call, error)

func (f DialerFunc) Dial(ctx context.Context, sessionID, contactID string) (Call, error) {
	return f(ctx, sessionID, contactID)
}

type Option func(*Server)

// WithCRM enables the lead status updates of the call status webhook.
func WithCRM(crm contractx.CRM) Option {
	return func(s *Server) {
		s.crm = crm
	}
}

// WithCampaign enables POST /api/campaign/start.
func WithCampaign(contacts contractx.ContactSource, placer contractx.CallPlacer) Option {
	return func(s *Server) {
		s.contacts = contacts
		s.placer = placer
	}
}

// WithLeadStore enables the latest-snapshot routes.
func WithLeadStore(store LeadStore) Option {
	return func(s *Server) {
		s.leads = store
	}
}

// WithLeadHistory enables GET /api/contacts/{contactID}/history.
func WithLeadHistory(history LeadHistory) Option {
	return func(s *Server) {
		s.history = history
	}
}

func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d >= 0 {
			s.idleTimeout = d
		}
	}
}

func WithStreamURL(u string) Option {
	return func(s *Server) {
		s.streamBase = strings.TrimSpace(u)
	}
}

func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

type Server struct {
	dialer   Dialer
	crm      contractx.CRM
	contacts contractx.ContactSource
	placer   contractx.CallPlacer
	leads    LeadStore
	history  LeadHistory
	metrics  http.Handler
	logger   zerolog.Logger
	now      func() time.Time

	idleTimeout time.Duration
	streamBase  string

	calls *CallRegistry
}

func New(dialer Dialer, opts ...Option) (*Server, error) {
	if dialer == nil {
		return nil, errors.New("dialer is required")
	}

	s := &Server{
		dialer: dialer,
		logger: log.Logger,
		now:    time.Now,
		calls:  NewCallRegistry(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Server) Calls() *CallRegistry {
	return s.calls
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Get("/ws", s.handleWebSocket)
	r.Post("/call_status", s.handleCallStatus)
	r.Post("/twiml", s.handleTwiML)
	r.Get("/api/calls", s.handleListCalls)
	r.Get("/api/calls/{callID}", s.handleGetCall)
	r.Get("/api/campaign/status", s.handleCampaignStatus)
	if s.contacts != nil && s.placer != nil {
		r.Post("/api/campaign/start", s.handleCampaignStart)
	}
	if s.leads != nil {
		r.Get("/api/calls/{callID}/lead", s.handleGetCallLead)
		r.Get("/api/contacts/{contactID}/lead", s.handleGetLead)
		r.Delete("/api/contacts/{contactID}/lead", s.handleDeleteLead)
	}
	if s.history != nil {
		r.Get("/api/contacts/{contactID}/history", s.handleLeadHistory)
	}

	return r
}

// ListenAndServe serves until ctx is canceled, then drains.
func (s *Server) ListenAndServe(ctx context.Context, cfg Config) error {
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", cfg.Addr).Msg("http server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "outbound-call-flow",
		"endpoints": map[string]string{
			"/ws":                               "GET - websocket text conversation, ?contactId=",
			"/call_status":                      "POST - Twilio call status webhook, ?contactId=",
			"/twiml":                            "POST - TwiML connecting an answered call to /ws",
			"/api/campaign/start":               "POST - dial CRM contacts by lead status",
			"/api/campaign/status":              "GET - dialed campaign calls",
			"/api/calls":                        "GET - recent calls",
			"/api/calls/{callID}/lead":          "GET - latest lead snapshot for a call",
			"/api/contacts/{contactID}/lead":    "GET, DELETE - latest lead snapshot",
			"/api/contacts/{contactID}/history": "GET - audited lead snapshots, ?limit=",
			"/healthz":                          "GET - liveness",
			"/metrics":                          "GET - prometheus metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"calls": s.calls.List()})
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.calls.Get(chi.URLParam(r, "callID"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "call not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(started)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
