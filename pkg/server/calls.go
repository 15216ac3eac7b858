package server

import (
	"sort"
	"sync"
	"time"
)

const maxCallRecords = 500

// CallRecord is what the server remembers about a call.
type CallRecord struct {
	CallID       string     `json:"call_id"`
	ContactID    string     `json:"contact_id,omitempty"`
	Transport    string     `json:"transport"`
	Phone        string     `json:"phone_number,omitempty"`
	LeadStatus   string     `json:"lead_status,omitempty"`
	DialStatus   string     `json:"dial_status,omitempty"`
	TwilioStatus string     `json:"twilio_status,omitempty"`
	Duration     string     `json:"duration,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// CallRegistry keeps the most recent calls in memory.
type CallRegistry struct {
	mu      sync.RWMutex
	records map[string]*CallRecord
}

func NewCallRegistry() *CallRegistry {
	return &CallRegistry{records: make(map[string]*CallRecord)}
}

// Upsert applies fn to the record for callID, creating it first if needed.
func (c *CallRegistry) Upsert(callID string, now time.Time, fn func(*CallRecord)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[callID]
	if !ok {
		rec = &CallRecord{CallID: callID, StartedAt: now.UTC()}
		c.records[callID] = rec
		c.evictLocked()
	}
	fn(rec)
}

func (c *CallRegistry) Get(callID string) (CallRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[callID]
	if !ok {
		return CallRecord{}, false
	}
	return *rec, true
}

// List returns the records newest first.
func (c *CallRegistry) List() []CallRecord {
	c.mu.RLock()
	out := make([]CallRecord, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, *rec)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

func (c *CallRegistry) evictLocked() {
	if len(c.records) <= maxCallRecords {
		return
	}
	var oldest *CallRecord
	for _, rec := range c.records {
		if oldest == nil || rec.StartedAt.Before(oldest.StartedAt) {
			oldest = rec
		}
	}
	delete(c.records, oldest.CallID)
}
