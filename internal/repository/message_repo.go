package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mtuog/CDW-sub002/internal/domain"
)

// MessageRepository handles message persistence
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a message, generating its id when not set
func (r *MessageRepository) Create(msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(`
		INSERT INTO messages (id, conversation_id, content, sender_role, sender_name, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.Content, string(msg.SenderRole), msg.SenderName, msg.Read, msg.CreatedAt)
	return err
}

// PageDesc returns one page of a conversation's messages, newest first,
// plus the total count
func (r *MessageRepository) PageDesc(conversationID string, limit, offset int) ([]domain.Message, int, error) {
	var total int
	if err := r.db.QueryRow(`
		SELECT COUNT(*) FROM messages WHERE conversation_id = ?
	`, conversationID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(`
		SELECT id, conversation_id, content, sender_role, sender_name, is_read, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?
	`, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Content, &role,
			&msg.SenderName, &msg.Read, &msg.CreatedAt); err != nil {
			return nil, 0, err
		}
		msg.SenderRole = domain.SenderRole(role)
		msgs = append(msgs, msg)
	}
	return msgs, total, rows.Err()
}

// Count returns the total number of stored messages
func (r *MessageRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// FirstByRole returns the earliest message a given role sent in a
// conversation, nil when there is none
func (r *MessageRepository) FirstByRole(conversationID string, role domain.SenderRole) (*domain.Message, error) {
	row := r.db.QueryRow(`
		SELECT id, conversation_id, content, sender_role, sender_name, is_read, created_at
		FROM messages WHERE conversation_id = ? AND sender_role = ?
		ORDER BY created_at ASC, id ASC LIMIT 1
	`, conversationID, string(role))

	var msg domain.Message
	var roleStr string
	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.Content, &roleStr,
		&msg.SenderName, &msg.Read, &msg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msg.SenderRole = domain.SenderRole(roleStr)
	return &msg, nil
}

// MarkRead marks every message not sent by the given side as read
func (r *MessageRepository) MarkRead(conversationID string, reader domain.SenderRole) error {
	_, err := r.db.Exec(`
		UPDATE messages SET is_read = 1
		WHERE conversation_id = ? AND sender_role != ? AND is_read = 0
	`, conversationID, string(reader))
	return err
}
