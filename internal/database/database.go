package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketchat/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	sender_id TEXT NOT NULL,
	receiver_id TEXT NOT NULL,
	content TEXT NOT NULL,
	direction TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_peer ON messages(sender_id, receiver_id);

CREATE TABLE IF NOT EXISTS pending_messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id TEXT NOT NULL UNIQUE,
	sender_id TEXT NOT NULL,
	receiver_id TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

// Database persists conversation history and the durable copy of the
// offline queue. Message content is encrypted at rest when an encryption
// secret is configured.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

// New opens (or creates) the database at path and applies the schema.
func New(path string) (*Database, error) {
	if path == "" {
		return nil, fmt.Errorf("invalid database path")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: enc}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// SaveMessage upserts a message into conversation history.
func (d *Database) SaveMessage(ctx context.Context, msg *models.Message) error {
	content, err := d.encryptor.EncryptIfEnabled(msg.Content)
	if err != nil {
		return fmt.Errorf("failed to encrypt content: %w", err)
	}

	query := `
		INSERT INTO messages (id, sender_id, receiver_id, content, direction, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
	`
	_, err = d.db.ExecContext(ctx, query,
		msg.ID, msg.SenderID, msg.ReceiverID, content,
		string(msg.Direction), string(msg.Status), msg.CreatedAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// UpdateMessageStatus updates the outbound status of a stored message.
func (d *Database) UpdateMessageStatus(ctx context.Context, id string, status models.MessageStatus) error {
	query := `UPDATE messages SET status = ?, updated_at = ? WHERE id = ?`
	_, err := d.db.ExecContext(ctx, query, string(status), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}
	return nil
}

// GetMessagesByPeer returns the stored conversation with the given peer in
// creation order.
func (d *Database) GetMessagesByPeer(ctx context.Context, userID, peerID string) ([]*models.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, content, direction, status, created_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, id ASC
	`
	rows, err := d.db.QueryContext(ctx, query, userID, peerID, peerID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Message
	for rows.Next() {
		msg, err := d.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// SavePendingMessage appends a message to the durable offline queue.
func (d *Database) SavePendingMessage(ctx context.Context, msg *models.Message) error {
	content, err := d.encryptor.EncryptIfEnabled(msg.Content)
	if err != nil {
		return fmt.Errorf("failed to encrypt content: %w", err)
	}

	query := `
		INSERT OR IGNORE INTO pending_messages (message_id, sender_id, receiver_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = d.db.ExecContext(ctx, query, msg.ID, msg.SenderID, msg.ReceiverID, content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save pending message: %w", err)
	}
	return nil
}

// DeletePendingMessage removes a flushed message from the durable queue.
func (d *Database) DeletePendingMessage(ctx context.Context, messageID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM pending_messages WHERE message_id = ?`, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete pending message: %w", err)
	}
	return nil
}

// GetPendingMessages returns the durable offline queue in enqueue order.
func (d *Database) GetPendingMessages(ctx context.Context) ([]*models.Message, error) {
	query := `
		SELECT message_id, sender_id, receiver_id, content, created_at
		FROM pending_messages
		ORDER BY seq ASC
	`
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Message
	for rows.Next() {
		var msg models.Message
		var content string
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending message: %w", err)
		}
		msg.Content, err = d.encryptor.DecryptIfEnabled(content)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt content: %w", err)
		}
		msg.Direction = models.DirectionSent
		msg.Status = models.StatusSending
		out = append(out, &msg)
	}
	return out, rows.Err()
}

// GetStaleMessageCount counts outbound messages stuck in sending/failed for
// longer than the threshold.
func (d *Database) GetStaleMessageCount(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold)
	query := `
		SELECT COUNT(*) FROM messages
		WHERE direction = ? AND status IN (?, ?) AND updated_at < ?
	`
	var count int
	err := d.db.QueryRowContext(ctx, query,
		string(models.DirectionSent), string(models.StatusSending), string(models.StatusFailed), cutoff,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count stale messages: %w", err)
	}
	return count, nil
}

func (d *Database) scanMessage(rows *sql.Rows) (*models.Message, error) {
	var msg models.Message
	var content, direction, status string
	if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &content, &direction, &status, &msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	plain, err := d.encryptor.DecryptIfEnabled(content)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt content: %w", err)
	}
	msg.Content = plain
	msg.Direction = models.MessageDirection(direction)
	msg.Status = models.MessageStatus(status)
	return &msg, nil
}
