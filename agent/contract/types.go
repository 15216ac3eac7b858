package contract

import "time"

type LeadStatus string

const (
	LeadStatusNew                LeadStatus = "NEW"
	LeadStatusOpen               LeadStatus = "OPEN"
	LeadStatusInProgress         LeadStatus = "IN_PROGRESS"
	LeadStatusOpenDeal           LeadStatus = "OPEN_DEAL"
	LeadStatusUnqualified        LeadStatus = "UNQUALIFIED"
	LeadStatusAttemptedToContact LeadStatus = "ATTEMPTED_TO_CONTACT"
	LeadStatusConnected          LeadStatus = "CONNECTED"
	LeadStatusBadTiming          LeadStatus = "BAD_TIMING"
)

// NoteField is one labelled line of a call note. Order is preserved in the
// rendered note body.
type NoteField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type TurnRole string

const (
	TurnRoleSystem    TurnRole = "system"
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
	TurnRoleTool      TurnRole = "tool"
)

// Turn is one entry of the live transcript kept by the transport layer.
type Turn struct {
	Role        TurnRole `json:"role"`
	Content     string   `json:"content"`
	HasToolCall bool     `json:"-"`
}

// FollowUpJob is published once a call ends with an email address on file.
type FollowUpJob struct {
	ContactID      string    `json:"contact_id"`
	EmailAddress   string    `json:"email_address"`
	ManagerName    string    `json:"manager_name"`
	CompanyName    string    `json:"company_name"`
	Kind           string    `json:"kind"`
	MeetingDayTime string    `json:"meeting_day_time,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	FollowUpMeetingInvite = "meeting_invite"
	FollowUpSummary       = "summary"
)

// Contact is a CRM contact an outbound campaign may dial.
type Contact struct {
	ID         string     `json:"contact_id"`
	FirstName  string     `json:"firstname,omitempty"`
	LastName   string     `json:"lastname,omitempty"`
	Email      string     `json:"email,omitempty"`
	Phone      string     `json:"phone_number,omitempty"`
	LeadStatus LeadStatus `json:"lead_status,omitempty"`
}

// OutboundCall asks the telephony provider to ring one contact.
type OutboundCall struct {
	To         string
	ContactID  string
	LeadStatus LeadStatus
}
