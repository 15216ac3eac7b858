package contract

import "context"

// CRM is the external record system a finished call is written back to.
// Implementations enforce their own timeouts.
type CRM interface {
	SyncCallOutcome(ctx context.Context, contactID string, fields []NoteField) error
	SetLeadStatus(ctx context.Context, contactID string, status LeadStatus) error
	CreateDeal(ctx context.Context, contactID string) error
}

type Retriever interface {
	Answer(ctx context.Context, question string, recent []Turn) (string, error)
}

// TurnSource exposes the live transcript, oldest first.
type TurnSource interface {
	Transcript() []Turn
}

type FollowUpPublisher interface {
	PublishFollowUp(ctx context.Context, job FollowUpJob) error
}

// ContactSource lists CRM contacts by lead status for outbound campaigns.
// A limit <= 0 means every match.
type ContactSource interface {
	SearchContactsByLeadStatus(ctx context.Context, statuses []LeadStatus, limit int) ([]Contact, error)
}

// CallPlacer starts an outbound phone call and returns the provider's call id.
type CallPlacer interface {
	PlaceCall(ctx context.Context, call OutboundCall) (string, error)
}
