package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/catchat/pkg/chat"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// History stores the messages of every conversation the server has seen.
type History interface {
	Append(ctx context.Context, conversationID string, msgs ...chat.Message) error
	List(ctx context.Context, conversationID string) ([]chat.Message, error)
	Close() error
}

// MemoryHistory is a size-limited in-memory History.
type MemoryHistory struct {
	mu         sync.Mutex
	maxPerConv int
	convs      map[string][]chat.Message
}

var _ History = &MemoryHistory{}

func NewMemoryHistory(maxPerConv int) *MemoryHistory {
	if maxPerConv <= 0 {
		maxPerConv = 1000
	}
	return &MemoryHistory{
		maxPerConv: maxPerConv,
		convs:      map[string][]chat.Message{},
	}
}

func (h *MemoryHistory) Append(_ context.Context, conversationID string, msgs ...chat.Message) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("in-memory history: conversation id is empty")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	conv := append(h.convs[conversationID], chat.CloneMessages(msgs)...)
	if over := len(conv) - h.maxPerConv; over > 0 {
		conv = append([]chat.Message(nil), conv[over:]...)
	}
	h.convs[conversationID] = conv
	return nil
}

func (h *MemoryHistory) List(_ context.Context, conversationID string) ([]chat.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := chat.CloneMessages(h.convs[conversationID])
	if out == nil {
		out = []chat.Message{}
	}
	return out, nil
}

func (h *MemoryHistory) Close() error { return nil }

// SQLiteHistory persists messages in sqlite, tool calls as a JSON column.
type SQLiteHistory struct {
	db *sql.DB
}

var _ History = &SQLiteHistory{}

// SQLiteHistoryDSNForFile builds a DSN with WAL and a busy timeout.
func SQLiteHistoryDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite history: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func NewSQLiteHistory(dsn string) (*SQLiteHistory, error) {
	if dsn == "" {
		return nil, errors.New("sqlite history: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite history: open")
	}
	h := &SQLiteHistory{db: db}
	if err := h.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

func (h *SQLiteHistory) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
		  seq INTEGER PRIMARY KEY AUTOINCREMENT,
		  conv_id TEXT NOT NULL,
		  message_id TEXT NOT NULL,
		  role TEXT NOT NULL,
		  content TEXT NOT NULL,
		  tool_calls_json TEXT NOT NULL DEFAULT '',
		  created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS chat_messages_by_conv
		  ON chat_messages(conv_id, seq);`,
	}
	for _, st := range stmts {
		if _, err := h.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite history: migrate")
		}
	}
	return nil
}

func (h *SQLiteHistory) Append(ctx context.Context, conversationID string, msgs ...chat.Message) error {
	if h == nil || h.db == nil {
		return errors.New("sqlite history: db is nil")
	}
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("sqlite history: conversation id is empty")
	}
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite history: begin")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		toolCalls := ""
		if len(m.ToolCalls) > 0 {
			b, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return errors.Wrap(err, "sqlite history: encode tool calls")
			}
			toolCalls = string(b)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chat_messages (conv_id, message_id, role, content, tool_calls_json, created_at_ms)
			VALUES (?, ?, ?, ?, ?, ?)
		`, conversationID, m.ID, string(m.Role), m.Content, toolCalls, now)
		if err != nil {
			return errors.Wrap(err, "sqlite history: insert message")
		}
	}
	return errors.Wrap(tx.Commit(), "sqlite history: commit")
}

func (h *SQLiteHistory) List(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if h == nil || h.db == nil {
		return nil, errors.New("sqlite history: db is nil")
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT message_id, role, content, tool_calls_json
		FROM chat_messages
		WHERE conv_id = ?
		ORDER BY seq ASC
	`, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite history: query")
	}
	defer func() { _ = rows.Close() }()

	out := []chat.Message{}
	for rows.Next() {
		var m chat.Message
		var role, toolCalls string
		if err := rows.Scan(&m.ID, &role, &m.Content, &toolCalls); err != nil {
			return nil, errors.Wrap(err, "sqlite history: scan")
		}
		m.Role = chat.Role(role)
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &m.ToolCalls); err != nil {
				return nil, errors.Wrapf(err, "sqlite history: decode tool calls of %s", m.ID)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite history: rows")
	}
	return out, nil
}

func (h *SQLiteHistory) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}
