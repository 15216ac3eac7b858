package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Field keys accepted by Store.Get/Set/Merge. They match the Lead json tags.
const (
	KeyContactID            = "contact_id"
	KeyManagerName          = "manager_name"
	KeyCompanyName          = "company_name"
	KeyCurrentProvider      = "current_provider"
	KeyHasExistingProvider  = "has_existing_provider"
	KeyInterestedInOffering = "interested_in_novated_leasing"
	KeyMeetingStatus        = "meeting_status"
	KeyMeetingDate          = "meeting_date"
	KeyMeetingTime          = "meeting_time"
	KeyMeetingDayTime       = "meeting_day_time"
	KeySendSummaryEmail     = "send_summary_email"
	KeyEmailAddress         = "email_address"
)

var (
	ErrUnknownKey = errors.New("unknown session state key")
	ErrValueType  = errors.New("session state value has wrong type")
)

// Store holds the Lead for one call. It does no semantic validation; Set only
// refuses values whose Go type does not fit the field.
type Store struct {
	mu   sync.RWMutex
	lead Lead
	now  func() time.Time
}

func NewStore(contactID string) *Store {
	s := &Store{now: time.Now}
	s.lead = NewLead(contactID, s.now())
	return s
}

// Get returns the field value and whether the key exists.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := fields[key]
	if !ok {
		return nil, false
	}
	return f.get(&s.lead), true
}

func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := setField(&s.lead, key, value); err != nil {
		return err
	}
	s.lead.UpdatedAt = s.now().UTC()
	return nil
}

// Merge applies every key of partial, or none of them if any key is rejected.
func (s *Store) Merge(partial map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.lead
	keys := make([]string, 0, len(partial))
	for k := range partial {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := setField(&next, k, partial[k]); err != nil {
			return err
		}
	}
	next.UpdatedAt = s.now().UTC()
	s.lead = next
	return nil
}

// Update runs fn against the live record under the write lock.
func (s *Store) Update(fn func(*Lead)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.lead)
	s.lead.UpdatedAt = s.now().UTC()
}

// Snapshot returns a copy of the current record.
func (s *Store) Snapshot() Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lead
}

type field struct {
	get func(*Lead) any
	set func(*Lead, any) bool
}

func setField(l *Lead, key string, value any) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if !f.set(l, value) {
		return fmt.Errorf("%w: key=%s type=%T", ErrValueType, key, value)
	}
	return nil
}

func stringField(ptr func(*Lead) *string) field {
	return field{
		get: func(l *Lead) any { return *ptr(l) },
		set: func(l *Lead, v any) bool {
			s, ok := v.(string)
			if ok {
				*ptr(l) = s
			}
			return ok
		},
	}
}

func boolField(ptr func(*Lead) *bool) field {
	return field{
		get: func(l *Lead) any { return *ptr(l) },
		set: func(l *Lead, v any) bool {
			b, ok := v.(bool)
			if ok {
				*ptr(l) = b
			}
			return ok
		},
	}
}

var fields = map[string]field{
	KeyContactID:       stringField(func(l *Lead) *string { return &l.ContactID }),
	KeyManagerName:     stringField(func(l *Lead) *string { return &l.ManagerName }),
	KeyCompanyName:     stringField(func(l *Lead) *string { return &l.CompanyName }),
	KeyCurrentProvider: stringField(func(l *Lead) *string { return &l.CurrentProvider }),
	KeyHasExistingProvider: {
		get: func(l *Lead) any { return l.HasExistingProvider },
		set: func(l *Lead, v any) bool {
			switch t := v.(type) {
			case Tristate:
				l.HasExistingProvider = t
			case bool:
				l.HasExistingProvider = TristateOf(t)
			default:
				return false
			}
			return true
		},
	},
	KeyInterestedInOffering: boolField(func(l *Lead) *bool { return &l.InterestedInOffering }),
	KeyMeetingStatus: {
		get: func(l *Lead) any { return l.MeetingStatus },
		set: func(l *Lead, v any) bool {
			switch t := v.(type) {
			case MeetingStatus:
				l.MeetingStatus = t
			case string:
				l.MeetingStatus = MeetingStatus(t)
			default:
				return false
			}
			return true
		},
	},
	KeyMeetingDate:      stringField(func(l *Lead) *string { return &l.MeetingDate }),
	KeyMeetingTime:      stringField(func(l *Lead) *string { return &l.MeetingTime }),
	KeyMeetingDayTime:   stringField(func(l *Lead) *string { return &l.MeetingDayTime }),
	KeySendSummaryEmail: boolField(func(l *Lead) *bool { return &l.SendSummaryEmail }),
	KeyEmailAddress:     stringField(func(l *Lead) *string { return &l.EmailAddress }),
}
