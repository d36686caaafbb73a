// Package history persists send and receive activity of the bench
// daemon in a local SQLite database so tuning sessions can be reviewed
// after the fact.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/ancware/tunelink/engine"
	"github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/protocol"
)

// Record directions
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Query limits
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 500
)

// Record is one row of protocol activity.
type Record struct {
	bun.BaseModel `bun:"table:send_history"`

	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	SessionID     string    `bun:"session_id,notnull" json:"session_id"`
	CorrelationID string    `bun:"correlation_id" json:"correlation_id"`
	Direction     string    `bun:"direction,notnull" json:"direction"`
	MessageType   string    `bun:"message_type,notnull" json:"message_type"`
	Function      string    `bun:"function,notnull" json:"function"`
	Paths         string    `bun:"paths" json:"paths"` // comma-separated parameter paths
	Outcome       string    `bun:"outcome" json:"outcome"`
	Detail        string    `bun:"detail" json:"detail"` // failure text, empty on success
	FrameLen      int       `bun:"frame_len,notnull,default:0" json:"frame_len"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// FromSendEvent builds a record from an outbound frame outcome.
func FromSendEvent(sessionID string, ev engine.SendEvent) *Record {
	rec := &Record{
		SessionID:     sessionID,
		CorrelationID: ev.ID,
		Direction:     DirectionSent,
		MessageType:   protocol.MessageTypeName(ev.Type),
		Function:      protocol.FunctionCodeName(ev.Function),
		Paths:         strings.Join(ev.Paths, ","),
		Outcome:       ev.Outcome.String(),
		FrameLen:      ev.FrameLen,
		CreatedAt:     ev.At,
	}
	if ev.Err != nil {
		rec.Detail = ev.Err.Error()
	}
	return rec
}

// FromMessage builds a record from a decoded inbound message.
func FromMessage(sessionID string, msg *protocol.DecodedMessage) *Record {
	paths := make([]string, 0, len(msg.Params))
	for path := range msg.Params {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return &Record{
		SessionID:   sessionID,
		Direction:   DirectionReceived,
		MessageType: protocol.MessageTypeName(msg.Type),
		Function:    protocol.FunctionCodeName(msg.Function),
		Paths:       strings.Join(paths, ","),
		Outcome:     DirectionReceived,
		CreatedAt:   time.Now().UTC(),
	}
}

// Query filters a history search. Zero fields match everything.
type Query struct {
	SessionID   string    `json:"session_id"`
	MessageType string    `json:"message_type"`
	Direction   string    `json:"direction"`
	Outcome     string    `json:"outcome"`
	Since       time.Time `json:"since"`
	Limit       int       `json:"limit"`
}

// Store is a SQLite-backed history log.
type Store struct {
	db     *bun.DB
	logger zerolog.Logger
}

// Open creates or opens the history database at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(ErrOpenFailed, "failed to create history directory", err).AddContext("dir", dir)
		}
	}

	sqldb, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, errors.New(ErrOpenFailed, "failed to open history database", err).AddContext("path", path)
	}

	store := NewWithDB(sqldb, logger)
	if err := store.init(context.Background()); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// NewWithDB wraps an existing database handle. Used by Open and by tests
// that substitute a mock connection.
func NewWithDB(sqldb *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     bun.NewDB(sqldb, sqlitedialect.New()),
		logger: logger.With().Str("component", "history").Logger(),
	}
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*Record)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.New(ErrInitFailed, "failed to create history table", err)
	}

	if _, err := s.db.NewCreateIndex().
		Model((*Record)(nil)).
		Index("idx_send_history_session").
		Column("session_id").
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.New(ErrInitFailed, "failed to create session index", err)
	}
	return nil
}

// Insert stores one record.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return errors.New(ErrInsertFailed, "failed to insert history record", err).
			AddContext("message_type", rec.MessageType)
	}
	return nil
}

// Search returns matching records, newest first.
func (s *Store) Search(ctx context.Context, q Query) ([]Record, error) {
	limit := q.Limit
	if limit <= 0 || limit > MaxQueryLimit {
		limit = DefaultQueryLimit
	}

	var recs []Record
	sel := s.db.NewSelect().Model(&recs).Order("id DESC").Limit(limit)
	if q.SessionID != "" {
		sel = sel.Where("session_id = ?", q.SessionID)
	}
	if q.MessageType != "" {
		sel = sel.Where("message_type = ?", q.MessageType)
	}
	if q.Direction != "" {
		sel = sel.Where("direction = ?", q.Direction)
	}
	if q.Outcome != "" {
		sel = sel.Where("outcome = ?", q.Outcome)
	}
	if !q.Since.IsZero() {
		sel = sel.Where("created_at >= ?", q.Since)
	}

	if err := sel.Scan(ctx); err != nil {
		return nil, errors.New(ErrQueryFailed, "failed to query history", err)
	}
	return recs, nil
}

// CountBySession returns how many records a session wrote.
func (s *Store) CountBySession(ctx context.Context, sessionID string) (int, error) {
	count, err := s.db.NewSelect().
		Model((*Record)(nil)).
		Where("session_id = ?", sessionID).
		Count(ctx)
	if err != nil {
		return 0, errors.New(ErrQueryFailed, "failed to count session records", err).
			AddContext("session_id", sessionID)
	}
	return count, nil
}

// Prune deletes records older than keepDays and reports how many went.
func (s *Store) Prune(ctx context.Context, keepDays int) (int64, error) {
	if keepDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -keepDays)
	res, err := s.db.NewDelete().
		Model((*Record)(nil)).
		Where("created_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, errors.New(ErrPruneFailed, "failed to prune history", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Int("keep_days", keepDays).Msg("Pruned history records")
	}
	return removed, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
