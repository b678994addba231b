package eventindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lineledger/core/types"
)

// Record is the SQL row of one audit record.
type Record struct {
	ID         string `gorm:"primaryKey;size:256"`
	Type       string `gorm:"index;size:64"`
	Block      uint64 `gorm:"index"`
	Timestamp  uint64
	TxHash     string `gorm:"index;size:66"`
	LogIndex   uint
	Contract   string `gorm:"index;size:42"`
	Line       string `gorm:"index;size:42"`
	Position   string `gorm:"index;size:66"`
	Attributes string
	CreatedAt  time.Time
}

// Event converts the row back into an audit record.
func (r Record) Event() (*types.Event, error) {
	attrs := map[string]string{}
	if r.Attributes != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("decode attributes of %s: %w", r.ID, err)
		}
	}
	return &types.Event{
		ID:         r.ID,
		Type:       r.Type,
		Block:      r.Block,
		Timestamp:  r.Timestamp,
		TxHash:     common.HexToHash(r.TxHash),
		LogIndex:   r.LogIndex,
		Contract:   common.HexToAddress(r.Contract),
		Attributes: attrs,
	}, nil
}

// Page bounds a query. A zero Limit uses DefaultLimit.
type Page struct {
	Offset int
	Limit  int
}

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Normalize clamps p to the supported bounds.
func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Index is a queryable copy of the audit journal.
type Index struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to dsn. Postgres URLs and keyword DSNs use the postgres
// driver; anything else is treated as a SQLite path or URI.
func Open(dsn string, logger *slog.Logger) (*Index, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("eventindex: dsn required")
	}
	var dialector gorm.Dialector
	if isPostgres(trimmed) {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("eventindex: open: %w", err)
	}
	return New(db, logger)
}

func isPostgres(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=")
}

// New migrates the schema on db and wraps it.
func New(db *gorm.DB, logger *slog.Logger) (*Index, error) {
	if db == nil {
		return nil, fmt.Errorf("eventindex: db required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("eventindex: migrate: %w", err)
	}
	return &Index{db: db, logger: logger}, nil
}

// Put inserts evt. Existing ids are left untouched.
func (i *Index) Put(ctx context.Context, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return fmt.Errorf("eventindex: encode %s: %w", evt.ID, err)
	}
	row := Record{
		ID:         evt.ID,
		Type:       evt.Type,
		Block:      evt.Block,
		Timestamp:  evt.Timestamp,
		TxHash:     strings.ToLower(evt.TxHash.Hex()),
		LogIndex:   evt.LogIndex,
		Contract:   types.AddressKey(evt.Contract),
		Line:       evt.Attr("line"),
		Position:   evt.Attr("position"),
		Attributes: string(attrs),
	}
	return i.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// Emit implements events.Emitter. Failures are logged; the KV journal remains
// the source of truth.
func (i *Index) Emit(evt *types.Event) {
	if err := i.Put(context.Background(), evt); err != nil {
		i.logger.Error("eventindex: insert failed",
			slog.String("id", evt.ID),
			slog.Any("error", err))
	}
}

// ByLine returns the records of line in chain order.
func (i *Index) ByLine(ctx context.Context, line common.Address, page Page) ([]Record, error) {
	return i.query(ctx, "line = ?", types.AddressKey(line), page)
}

// ByPosition returns the records of position id in chain order.
func (i *Index) ByPosition(ctx context.Context, id common.Hash, page Page) ([]Record, error) {
	return i.query(ctx, "position = ?", types.HashKey(id), page)
}

// ByType returns records of one type in chain order.
func (i *Index) ByType(ctx context.Context, eventType string, page Page) ([]Record, error) {
	return i.query(ctx, "type = ?", eventType, page)
}

func (i *Index) query(ctx context.Context, where string, arg interface{}, page Page) ([]Record, error) {
	page = page.Normalize()
	var rows []Record
	err := i.db.WithContext(ctx).
		Where(where, arg).
		Order("block asc, log_index asc, id asc").
		Offset(page.Offset).
		Limit(page.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("eventindex: query: %w", err)
	}
	return rows, nil
}

// Close releases the underlying connection pool.
func (i *Index) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
