// Package archive persists committed engine events to SQL for audit queries.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"creditvault/core/events"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrUnknownDriver is returned by Open for drivers other than sqlite and postgres.
var ErrUnknownDriver = errors.New("archive: unknown driver")

// Record is one archived event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"index"`
	Vault      string    `gorm:"size:128;index"`
	Type       string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// TableName pins the table name independent of the struct name.
func (Record) TableName() string { return "portfolio_events" }

// Attrs decodes the stored attribute map.
func (r Record) Attrs() (map[string]string, error) {
	out := make(map[string]string)
	if r.Attributes == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Archive buffers emitted events until Commit writes them in one transaction.
type Archive struct {
	db      *gorm.DB
	nowFn   func() time.Time
	mu      sync.Mutex
	pending []Record
	seq     uint64
}

// Open connects to driver ("sqlite" or "postgres") and migrates the schema.
func Open(driver, dsn string) (*Archive, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	return New(db)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Archive, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	a := &Archive{db: db, nowFn: time.Now}
	var last Record
	err := db.Order("sequence desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, err
	}
	a.seq = last.Sequence
	return a, nil
}

// SetNowFunc overrides the timestamp source.
func (a *Archive) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	a.nowFn = now
}

// Emit implements events.Emitter. Events without a typed payload are stored
// with an empty attribute map.
func (a *Archive) Emit(evt events.Event) {
	if a == nil || evt == nil {
		return
	}
	attrs := map[string]string{}
	if typed := events.Typed(evt); typed != nil && typed.Attributes != nil {
		attrs = typed.Attributes
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		encoded = []byte("{}")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	a.pending = append(a.pending, Record{
		ID:         uuid.New(),
		Sequence:   a.seq,
		Vault:      attrs["vault"],
		Type:       evt.EventType(),
		Attributes: string(encoded),
		CreatedAt:  a.nowFn().UTC(),
	})
}

// Pending reports how many events await Commit.
func (a *Archive) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Commit writes buffered events. On failure the buffer is kept so the next
// Commit retries them.
func (a *Archive) Commit(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pending) == 0 {
		return nil
	}
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(a.pending, 200).Error
	})
	if err != nil {
		return fmt.Errorf("archive: commit %d events: %w", len(a.pending), err)
	}
	a.pending = a.pending[:0]
	return nil
}

// Filter narrows Query. Zero fields match everything.
type Filter struct {
	Vault string
	Type  string
	After uint64
	Limit int
}

// Query returns archived events in emission order.
func (a *Archive) Query(ctx context.Context, f Filter) ([]Record, error) {
	q := a.db.WithContext(ctx).Model(&Record{}).Order("sequence asc")
	if f.Vault != "" {
		q = q.Where("vault = ?", f.Vault)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.After > 0 {
		q = q.Where("sequence > ?", f.After)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []Record
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
