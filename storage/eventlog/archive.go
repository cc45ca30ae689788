package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"augmint/core/events"
)

const defaultQueryLimit = 100

// Record is one committed event as stored in the archive.
type Record struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Type       string    `gorm:"index;not null" json:"type"`
	Attributes string    `gorm:"type:text;not null" json:"-"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}

func (Record) TableName() string { return "augmint_events" }

// Decoded returns the record's attribute map.
func (r Record) Decoded() (map[string]string, error) {
	out := map[string]string{}
	if r.Attributes == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, fmt.Errorf("eventlog: decode record %d: %w", r.ID, err)
	}
	return out, nil
}

// Query selects archived events. Zero values match everything.
type Query struct {
	Type    string
	AfterID uint64
	Limit   int
}

// Archive persists committed events through gorm. It implements events.Emitter
// so the node flushes into it after every commit.
type Archive struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to the archive database for driver "sqlite" or "postgres".
func Open(driver, dsn string) (*Archive, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("eventlog: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", driver, err)
	}
	return New(db)
}

// New migrates the schema on db and returns an archive over it.
func New(db *gorm.DB) (*Archive, error) {
	if db == nil {
		return nil, fmt.Errorf("eventlog: database must be provided")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}
	return &Archive{
		db:     db,
		logger: slog.Default().With("component", "eventlog"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Emit stores evt. Failures are logged; the ledger state is already committed.
func (a *Archive) Emit(evt events.Event) {
	if a == nil || evt == nil {
		return
	}
	if err := a.Append(context.Background(), evt); err != nil {
		a.logger.Error("archive event", "type", evt.EventType(), "error", err)
	}
}

func (a *Archive) Append(ctx context.Context, evt events.Event) error {
	payload := evt.Event()
	attrs := map[string]string{}
	if payload != nil && payload.Attributes != nil {
		attrs = payload.Attributes
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	record := Record{Type: evt.EventType(), Attributes: string(raw), CreatedAt: a.now()}
	return a.db.WithContext(ctx).Create(&record).Error
}

// Query returns matching records in commit order.
func (a *Archive) Query(ctx context.Context, q Query) ([]Record, error) {
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultQueryLimit
	}
	tx := a.db.WithContext(ctx).Model(&Record{}).Where("id > ?", q.AfterID)
	if t := strings.TrimSpace(q.Type); t != "" {
		tx = tx.Where("type = ?", t)
	}
	var out []Record
	if err := tx.Order("id asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
