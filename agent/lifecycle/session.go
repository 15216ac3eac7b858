package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/flow"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/nodes"
	statex "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/state"
)

type Config struct {
	CorrelationID string
}

type Deps struct {
	Presenter flow.Presenter
	Retriever contractx.Retriever
	Turns     contractx.TurnSource

	// Optional collaborators. A nil CRM skips the sync.
	CRM      contractx.CRM
	Audit    statex.AuditSink
	FollowUp contractx.FollowUpPublisher

	Hooks  flow.Hooks
	Logger *zerolog.Logger
	Now    func() time.Time
}

// Session owns one call: the lead record, the node graph and the engine.
// The lead outlives the engine so teardown can still read it.
type Session struct {
	contactID string
	store     *statex.Store
	graph     *nodes.Graph
	engine    *flow.Engine

	crm      contractx.CRM
	audit    statex.AuditSink
	followUp contractx.FollowUpPublisher
	logger   zerolog.Logger
	now      func() time.Time

	endOnce sync.Once
}

var _ nodes.Finalizer = (*Session)(nil)

// Start creates the lead with defaults, installs the greeting node and
// presents it to the transport.
func Start(ctx context.Context, cfg Config, deps Deps) (*Session, error) {
	if deps.Presenter == nil {
		return nil, errors.New("presenter is required")
	}
	if deps.Retriever == nil {
		return nil, errors.New("retriever is required")
	}

	contactID := strings.TrimSpace(cfg.CorrelationID)
	logger := log.Logger
	if deps.Logger != nil {
		logger = *deps.Logger
	}
	logger = logger.With().Str("correlation_id", contactID).Logger()

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		contactID: contactID,
		store:     statex.NewStore(contactID),
		crm:       deps.CRM,
		audit:     deps.Audit,
		followUp:  deps.FollowUp,
		logger:    logger,
		now:       now,
	}

	graph, err := nodes.NewGraph(nodes.Deps{
		Retriever: deps.Retriever,
		Turns:     deps.Turns,
		Finalizer: s,
		Audit:     deps.Audit,
		Logger:    &logger,
	})
	if err != nil {
		return nil, err
	}
	s.graph = graph

	engine, err := flow.New(s.store, deps.Presenter, flow.WithLogger(logger), flow.WithHooks(deps.Hooks))
	if err != nil {
		return nil, err
	}
	s.engine = engine

	if err := engine.Initialize(ctx, graph.InitialGreeting()); err != nil {
		return nil, err
	}

	logger.Info().Msg("outbound call flow started")
	return s, nil
}

func (s *Session) Engine() *flow.Engine {
	return s.engine
}

func (s *Session) Lead() statex.Lead {
	return s.store.Snapshot()
}

func (s *Session) ContactID() string {
	return s.contactID
}

// Finalize is the finalize action's entry into teardown.
func (s *Session) Finalize(ctx context.Context) error {
	s.End(ctx)
	return nil
}

// End flushes the call outcome. Only the first call does any work; the
// finalize action and a transport disconnect may both call it.
func (s *Session) End(ctx context.Context) {
	s.endOnce.Do(func() {
		s.end(context.WithoutCancel(ctx))
	})
}

func (s *Session) end(ctx context.Context) {
	lead := s.store.Snapshot()
	s.logger.Info().Object("lead", lead).Msg("call ended, processing lead data")

	switch {
	case s.contactID == "":
		s.logger.Warn().Msg("no contact id, skipping CRM sync")
	case s.crm == nil:
		s.logger.Warn().Msg("no CRM configured, skipping CRM sync")
	default:
		s.syncCRM(ctx, lead)
	}

	if s.audit != nil {
		snap := &statex.Snapshot{Reason: statex.SnapshotSessionEnded, Lead: lead, TakenAt: s.now()}
		if err := s.audit.Record(ctx, snap); err != nil {
			s.logger.Warn().Err(err).Msg("record final lead snapshot failed")
		}
	}

	s.publishFollowUp(ctx, lead)
}

// syncCRM writes the note, then the status, then the deal. Each step is
// attempted regardless of earlier failures.
func (s *Session) syncCRM(ctx context.Context, lead statex.Lead) {
	if err := s.crm.SyncCallOutcome(ctx, s.contactID, lead.NoteFields()); err != nil {
		s.logger.Error().Err(err).Msg("add call notes failed")
	}

	status := LeadStatusFor(lead)
	if err := s.crm.SetLeadStatus(ctx, s.contactID, status); err != nil {
		s.logger.Error().Err(err).Str("lead_status", string(status)).Msg("update lead status failed")
	}

	if status == contractx.LeadStatusOpenDeal {
		if err := s.crm.CreateDeal(ctx, s.contactID); err != nil {
			s.logger.Error().Err(err).Msg("create deal failed")
		}
	}

	s.logger.Info().Str("lead_status", string(status)).Msg("CRM sync finished")
}

func (s *Session) publishFollowUp(ctx context.Context, lead statex.Lead) {
	if s.followUp == nil {
		return
	}
	job, ok := FollowUpFor(lead, s.now())
	if !ok {
		return
	}
	if err := s.followUp.PublishFollowUp(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("kind", job.Kind).Msg("publish follow-up failed")
		return
	}
	s.logger.Info().Str("kind", job.Kind).Msg("follow-up published")
}

// LeadStatusFor maps the lead to the CRM status. Interest alone decides it.
func LeadStatusFor(lead statex.Lead) contractx.LeadStatus {
	if lead.InterestedInOffering {
		return contractx.LeadStatusOpenDeal
	}
	return contractx.LeadStatusConnected
}

// FollowUpFor builds the email job for a lead, if one is owed.
func FollowUpFor(lead statex.Lead, now time.Time) (contractx.FollowUpJob, bool) {
	email := strings.TrimSpace(lead.EmailAddress)
	if email == "" || email == statex.NotProvided {
		return contractx.FollowUpJob{}, false
	}

	var kind string
	switch {
	case lead.MeetingStatus == statex.MeetingInterestedToSchedule:
		kind = contractx.FollowUpMeetingInvite
	case lead.SendSummaryEmail:
		kind = contractx.FollowUpSummary
	default:
		return contractx.FollowUpJob{}, false
	}

	job := contractx.FollowUpJob{
		ContactID:    lead.ContactID,
		EmailAddress: email,
		ManagerName:  lead.ManagerName,
		CompanyName:  lead.CompanyName,
		Kind:         kind,
		CreatedAt:    now.UTC(),
	}
	if kind == contractx.FollowUpMeetingInvite {
		job.MeetingDayTime = lead.MeetingDayTime
	}
	return job, true
}
