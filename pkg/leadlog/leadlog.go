package leadlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	statex "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/state"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type Config struct {
	DSN         string        `envconfig:"DSN"`
	DialTimeout time.Duration `split_words:"true" default:"5s"`
}

// Enabled reports whether a database was configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.DSN) != ""
}

// LeadSnapshotRow is one audited lead snapshot.
type LeadSnapshotRow struct {
	bun.BaseModel `bun:"table:lead_snapshots,alias:ls" json:"-"`

	ID                  int64     `bun:"id,pk,autoincrement" json:"id"`
	ContactID           string    `bun:"contact_id,notnull" json:"contact_id"`
	Reason              string    `bun:"reason,notnull" json:"reason"`
	ManagerName         string    `bun:"manager_name" json:"manager_name"`
	CompanyName         string    `bun:"company_name" json:"company_name"`
	CurrentProvider     string    `bun:"current_provider" json:"current_provider"`
	HasExistingProvider *bool     `bun:"has_existing_provider" json:"has_existing_provider"`
	Interested          bool      `bun:"interested,notnull" json:"interested"`
	MeetingStatus       string    `bun:"meeting_status,notnull" json:"meeting_status"`
	MeetingDate         string    `bun:"meeting_date" json:"meeting_date"`
	MeetingTime         string    `bun:"meeting_time" json:"meeting_time"`
	MeetingDayTime      string    `bun:"meeting_day_time" json:"meeting_day_time"`
	SendSummaryEmail    bool      `bun:"send_summary_email,notnull" json:"send_summary_email"`
	EmailAddress        string    `bun:"email_address" json:"email_address"`
	TakenAt             time.Time `bun:"taken_at,notnull" json:"taken_at"`
}

// Repository appends lead snapshots to Postgres.
type Repository struct {
	db *bun.DB
}

var _ statex.AuditSink = (*Repository)(nil)

// Open connects to Postgres with pgdriver. Connections are lazy.
func Open(cfg Config) (*Repository, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("leadlog dsn is required")
	}

	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if cfg.DialTimeout > 0 {
		opts = append(opts, pgdriver.WithDialTimeout(cfg.DialTimeout))
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	return New(bun.NewDB(sqldb, pgdialect.New()))
}

func New(db *bun.DB) (*Repository, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &Repository{db: db}, nil
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.NewCreateTable().
		Model((*LeadSnapshotRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create lead_snapshots: %w", err)
	}
	if _, err := r.db.NewCreateIndex().
		Model((*LeadSnapshotRow)(nil)).
		Index("lead_snapshots_contact_idx").
		IfNotExists().
		Column("contact_id", "taken_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("create lead_snapshots index: %w", err)
	}
	return nil
}

func (r *Repository) Record(ctx context.Context, snap *statex.Snapshot) error {
	row, err := RowFromSnapshot(snap)
	if err != nil {
		return err
	}
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert lead snapshot contact_id=%s: %w", row.ContactID, err)
	}
	return nil
}

// History returns up to limit snapshots for a contact, newest first.
func (r *Repository) History(ctx context.Context, contactID string, limit int) ([]LeadSnapshotRow, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []LeadSnapshotRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("contact_id = ?", strings.TrimSpace(contactID)).
		Order("taken_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select lead snapshots contact_id=%s: %w", contactID, err)
	}
	return rows, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// RowFromSnapshot flattens a snapshot into its table row. An unknown
// existing-provider answer is stored as NULL.
func RowFromSnapshot(snap *statex.Snapshot) (*LeadSnapshotRow, error) {
	if snap == nil {
		return nil, statex.ErrNilSnapshot
	}

	lead := snap.Lead
	takenAt := snap.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now().UTC()
	}

	row := &LeadSnapshotRow{
		ContactID:        lead.ContactID,
		Reason:           snap.Reason,
		ManagerName:      lead.ManagerName,
		CompanyName:      lead.CompanyName,
		CurrentProvider:  lead.CurrentProvider,
		Interested:       lead.InterestedInOffering,
		MeetingStatus:    string(lead.MeetingStatus),
		MeetingDate:      lead.MeetingDate,
		MeetingTime:      lead.MeetingTime,
		MeetingDayTime:   lead.MeetingDayTime,
		SendSummaryEmail: lead.SendSummaryEmail,
		EmailAddress:     lead.EmailAddress,
		TakenAt:          takenAt,
	}
	switch lead.HasExistingProvider {
	case statex.Yes:
		v := true
		row.HasExistingProvider = &v
	case statex.No:
		v := false
		row.HasExistingProvider = &v
	}
	return row, nil
}
