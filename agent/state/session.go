package state

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
)

// Lead is the per-call record of captured facts and flags. It carries no
// behavior beyond formatting; handlers own the correctness of its contents.
type Lead struct {
	// Identity
	ContactID string `json:"contact_id"`

	// Captured facts
	ManagerName     string `json:"manager_name,omitempty"`
	CompanyName     string `json:"company_name,omitempty"`
	CurrentProvider string `json:"current_provider,omitempty"`

	// Decision flags
	HasExistingProvider  Tristate `json:"has_existing_provider"`
	InterestedInOffering bool     `json:"interested_in_novated_leasing"`

	// Meeting outcome
	MeetingStatus  MeetingStatus `json:"meeting_status"`
	MeetingDate    string        `json:"meeting_date,omitempty"`
	MeetingTime    string        `json:"meeting_time,omitempty"`
	MeetingDayTime string        `json:"meeting_day_time,omitempty"` // derived from date/time

	// Follow-up
	SendSummaryEmail bool   `json:"send_summary_email"`
	EmailAddress     string `json:"email_address,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

const (
	NotProvided   = "Not provided"
	ToBeConfirmed = "To be confirmed"
	NoProvider    = "none"
)

type Tristate int

const (
	Unknown Tristate = iota
	Yes
	No
)

func TristateOf(v bool) Tristate {
	if v {
		return Yes
	}
	return No
}

func (t Tristate) String() string {
	switch t {
	case Yes:
		return "true"
	case No:
		return "false"
	default:
		return "unknown"
	}
}

type MeetingStatus string

const (
	MeetingNotDiscussed         MeetingStatus = "Not Discussed"
	MeetingInterestedToSchedule MeetingStatus = "Interested - To Be Scheduled"
	MeetingDeclined             MeetingStatus = "Declined"
)

// NewLead returns a record with every field at its default.
func NewLead(contactID string, now time.Time) Lead {
	return Lead{
		ContactID:     contactID,
		MeetingStatus: MeetingNotDiscussed,
		UpdatedAt:     now.UTC(),
	}
}

// NoteFields renders the full outcome field set in a stable order. Empty
// values are reported as "None" so the note never drops a line.
func (l Lead) NoteFields() []contractx.NoteField {
	return []contractx.NoteField{
		{Label: "Manager Name", Value: orNone(l.ManagerName)},
		{Label: "Company Name", Value: orNone(l.CompanyName)},
		{Label: "Current Provider", Value: orNone(l.CurrentProvider)},
		{Label: "Meeting Status", Value: string(l.MeetingStatus)},
		{Label: "Meeting Date", Value: orNone(l.MeetingDate)},
		{Label: "Meeting Time", Value: orNone(l.MeetingTime)},
		{Label: "Meeting Day/Time", Value: orNone(l.MeetingDayTime)},
		{Label: "Email Address", Value: orNone(l.EmailAddress)},
		{Label: "Interested", Value: strconv.FormatBool(l.InterestedInOffering)},
		{Label: "Has Existing Provider", Value: l.HasExistingProvider.String()},
		{Label: "Send Summary Email", Value: strconv.FormatBool(l.SendSummaryEmail)},
	}
}

func orNone(v string) string {
	if v == "" {
		return "None"
	}
	return v
}

// CombineMeetingDayTime derives the display-only day/time field.
func CombineMeetingDayTime(date, clock string) string {
	switch {
	case date != "" && clock != "":
		return date + " at " + clock
	case date != "":
		return date
	case clock != "":
		return clock
	default:
		return ToBeConfirmed
	}
}

func (t Tristate) MarshalJSON() ([]byte, error) {
	switch t {
	case Yes:
		return []byte("true"), nil
	case No:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (t *Tristate) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true":
		*t = Yes
	case "false":
		*t = No
	default:
		*t = Unknown
	}
	return nil
}

// MarshalZerologObject logs the lead as flat structured fields.
func (l Lead) MarshalZerologObject(e *zerolog.Event) {
	e.Str("contact_id", l.ContactID).
		Str("manager_name", orNone(l.ManagerName)).
		Str("company_name", orNone(l.CompanyName)).
		Str("current_provider", orNone(l.CurrentProvider)).
		Str("has_existing_provider", l.HasExistingProvider.String()).
		Str("meeting_status", string(l.MeetingStatus)).
		Str("meeting_date", orNone(l.MeetingDate)).
		Str("meeting_time", orNone(l.MeetingTime)).
		Str("meeting_day_time", orNone(l.MeetingDayTime)).
		Str("email_address", orNone(l.EmailAddress)).
		Bool("interested_in_novated_leasing", l.InterestedInOffering).
		Bool("send_summary_email", l.SendSummaryEmail)
}
