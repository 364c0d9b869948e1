// Package store persists finished chat exchanges to PostgreSQL and serves
// the read-side conversation queries.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound reports that no conversation exists under the given name.
	ErrNotFound = errors.New("conversation not found")

	// ErrPageNotFound reports a page number outside the paginated range.
	ErrPageNotFound = errors.New("page not found")
)

// MessageTypeText is the default message type for plain text exchanges.
const MessageTypeText = "Text"

// Entry is one persisted prompt/response pair.
type Entry struct {
	ID               int64
	Prompt           string
	Result           string
	ConversationName string
	MessageType      string
	DateTime         time.Time
}

// Page is one page of the reverse-chronological history.
type Page struct {
	TotalItems  int64
	TotalPages  int
	CurrentPage int
	HasNext     bool
	HasPrevious bool
	Entries     []Entry
}

// entryCols is the standard SELECT column list for scanEntries.
const entryCols = `id, prompt, result, conversation_name, message_type, date_time`

// Store reads and writes chat entries. Safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store.
func New(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Save inserts one finished exchange.
func (s *Store) Save(ctx context.Context, e Entry) error {
	if e.Prompt == "" || e.Result == "" {
		return errors.New("prompt and result are required")
	}
	if e.MessageType == "" {
		e.MessageType = MessageTypeText
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat (prompt, result, conversation_name, message_type)
		 VALUES ($1, $2, $3, $4)`,
		e.Prompt, e.Result, e.ConversationName, e.MessageType,
	)
	if err != nil {
		return fmt.Errorf("inserting chat entry: %w", err)
	}
	return nil
}

// SaveConversation persists one prompt/response pair under a conversation
// name. It adapts Save to the shape the stream orchestrator records through.
func (s *Store) SaveConversation(ctx context.Context, prompt, result, conversationName string) error {
	return s.Save(ctx, Entry{
		Prompt:           prompt,
		Result:           result,
		ConversationName: conversationName,
	})
}

// History returns one page of all entries, newest first. Page numbers are
// 1-based; a page past the end returns ErrPageNotFound. An empty table
// still has one (empty) page.
func (s *Store) History(ctx context.Context, page, limit int) (Page, error) {
	if page < 1 {
		return Page{}, ErrPageNotFound
	}
	if limit < 1 {
		return Page{}, fmt.Errorf("limit must be positive, got %d", limit)
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chat`).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("counting chat entries: %w", err)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	if totalPages == 0 {
		totalPages = 1
	}
	if page > totalPages {
		return Page{}, ErrPageNotFound
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+entryCols+` FROM chat
		 ORDER BY date_time DESC, id DESC
		 LIMIT $1 OFFSET $2`,
		limit, (page-1)*limit,
	)
	if err != nil {
		return Page{}, fmt.Errorf("querying chat history: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return Page{}, err
	}

	return Page{
		TotalItems:  total,
		TotalPages:  totalPages,
		CurrentPage: page,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
		Entries:     entries,
	}, nil
}

// ByName returns every entry of one conversation in chronological order.
// Returns ErrNotFound when the name has no entries.
func (s *Store) ByName(ctx context.Context, conversationName string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryCols+` FROM chat
		 WHERE conversation_name = $1
		 ORDER BY date_time, id`,
		conversationName,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversation %q: %w", conversationName, err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries, nil
}

// Latest returns the entries of the most recently active conversation in
// chronological order, or an empty slice when the table is empty.
func (s *Store) Latest(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryCols+` FROM chat
		 WHERE conversation_name = (
		     SELECT conversation_name FROM chat
		     ORDER BY date_time DESC, id DESC
		     LIMIT 1
		 )
		 ORDER BY date_time, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying latest conversation: %w", err)
	}
	return scanEntries(rows)
}

// scanEntries reads Entry structs from pgx.Rows (standard column set).
func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.Prompt, &e.Result,
			&e.ConversationName, &e.MessageType, &e.DateTime,
		); err != nil {
			return nil, fmt.Errorf("scanning chat entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chat entries: %w", err)
	}
	return entries, nil
}
