package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/lifecycle"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/llm"
)

// DialInput names a call. SessionID identifies the connection; ContactID is
// the CRM record and may be empty, in which case the CRM sync is skipped.
type DialInput struct {
	SessionID string
	ContactID string
}

// DialState is carried between the dial graph steps.
type DialState struct {
	SessionID string
	ContactID string
	StartedAt time.Time

	conv     *llm.Conversation
	session  *lifecycle.Session
	greeting llm.Reply
}

const maxIDLength = 128

func ValidateRequest(in DialInput, now func() time.Time) (*DialState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidRequest)
	}
	if err := checkID(sessionID); err != nil {
		return nil, fmt.Errorf("%w: session id %v", ErrInvalidRequest, err)
	}

	contactID := strings.TrimSpace(in.ContactID)
	if contactID != "" {
		if err := checkID(contactID); err != nil {
			return nil, fmt.Errorf("%w: contact id %v", ErrInvalidRequest, err)
		}
	}

	if now == nil {
		now = time.Now
	}
	return &DialState{
		SessionID: sessionID,
		ContactID: contactID,
		StartedAt: now().UTC(),
	}, nil
}

func checkID(id string) error {
	if len(id) > maxIDLength {
		return fmt.Errorf("longer than %d", maxIDLength)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return errors.New("contains whitespace")
		}
	}
	return nil
}

func (o *Orchestrator) openConversation(in *DialState) (*DialState, error) {
	logger := o.logger.With().Str("session_id", in.SessionID).Str("correlation_id", in.ContactID).Logger()

	opts := []llm.ConversationOption{
		llm.WithFiller(o.newFiller()),
		llm.WithConversationLogger(logger),
	}
	if o.cfg.MaxToolSteps > 0 {
		opts = append(opts, llm.WithMaxToolSteps(o.cfg.MaxToolSteps))
	}

	conv, err := llm.NewConversation(o.deps.Model, opts...)
	if err != nil {
		return nil, fmt.Errorf("open conversation: %w", err)
	}
	in.conv = conv
	return in, nil
}

func (o *Orchestrator) startSession(ctx context.Context, in *DialState) (*DialState, error) {
	logger := o.logger.With().Str("session_id", in.SessionID).Logger()
	sess, err := lifecycle.Start(ctx, lifecycle.Config{CorrelationID: in.ContactID}, lifecycle.Deps{
		Presenter: in.conv,
		Turns:     in.conv,
		Retriever: o.deps.Retriever,
		CRM:       o.deps.CRM,
		Audit:     o.deps.Audit,
		FollowUp:  o.deps.FollowUp,
		Hooks:     o.deps.Hooks,
		Logger:    &logger,
	})
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	in.conv.Attach(sess.Engine())
	in.session = sess
	return in, nil
}

// greet lets the greeting node speak. A failed first turn still leaves a
// live call; the caller's first utterance retries generation.
func (o *Orchestrator) greet(ctx context.Context, in *DialState) (*DialState, error) {
	reply, err := in.conv.Begin(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Str("session_id", in.SessionID).Msg("greeting generation failed")
	}
	in.greeting = reply
	return in, nil
}

func (o *Orchestrator) finalizeCall(in *DialState) (*Call, error) {
	call := &Call{
		ID:        in.SessionID,
		ContactID: in.ContactID,
		StartedAt: in.StartedAt,
		greeting:  in.greeting,
		conv:      in.conv,
		session:   in.session,
	}
	if o.deps.CallStarted != nil {
		call.onEnd = o.deps.CallStarted()
	}
	return call, nil
}
