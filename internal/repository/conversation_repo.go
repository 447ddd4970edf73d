package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mtuog/CDW-sub002/internal/domain"
)

// ConversationRepository handles conversation persistence
type ConversationRepository struct {
	db *DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create creates a new pending conversation
func (r *ConversationRepository) Create(conv *domain.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.Status == "" {
		conv.Status = domain.StatusPending
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO conversations (id, visitor_id, visitor_name, visitor_email, subject, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, conv.ID, conv.VisitorID, conv.VisitorName, conv.VisitorEmail, conv.Subject,
		string(conv.Status), conv.CreatedAt, conv.UpdatedAt)

	return err
}

const conversationColumns = `id, visitor_id, visitor_name, visitor_email, subject, status,
	admin_id, admin_name, assistant_started, last_message, last_message_at,
	visitor_unread, admin_unread, created_at, updated_at`

func scanConversation(row interface{ Scan(...any) error }) (*domain.Conversation, error) {
	conv := &domain.Conversation{}
	var email, adminID, adminName, lastMessage sql.NullString
	var lastMessageAt sql.NullTime
	var status string

	err := row.Scan(&conv.ID, &conv.VisitorID, &conv.VisitorName, &email, &conv.Subject,
		&status, &adminID, &adminName, &conv.AssistantStarted, &lastMessage, &lastMessageAt,
		&conv.VisitorUnread, &conv.AdminUnread, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	conv.Status = domain.ConversationStatus(status)
	conv.VisitorEmail = email.String
	conv.AdminID = adminID.String
	conv.AdminName = adminName.String
	conv.LastMessage = lastMessage.String
	if lastMessageAt.Valid {
		conv.LastMessageAt = lastMessageAt.Time
	}
	return conv, nil
}

// Get retrieves a conversation by ID, nil when absent
func (r *ConversationRepository) Get(id string) (*domain.Conversation, error) {
	row := r.db.QueryRow(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ListByVisitor returns a visitor's conversations, newest activity first
func (r *ConversationRepository) ListByVisitor(visitorID string) ([]domain.Conversation, error) {
	rows, err := r.db.Query(`
		SELECT `+conversationColumns+` FROM conversations
		WHERE visitor_id = ? ORDER BY updated_at DESC
	`, visitorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConversations(rows)
}

// ListByStatus pages conversations in one status, newest activity first
func (r *ConversationRepository) ListByStatus(status domain.ConversationStatus, limit, offset int) ([]domain.Conversation, int, error) {
	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE status = ?`, string(status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(`
		SELECT `+conversationColumns+` FROM conversations
		WHERE status = ? ORDER BY updated_at DESC LIMIT ? OFFSET ?
	`, string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	convs, err := collectConversations(rows)
	return convs, total, err
}

func collectConversations(rows *sql.Rows) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

// CountByStatus returns the number of conversations in one status
func (r *ConversationRepository) CountByStatus(status domain.ConversationStatus) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE status = ?`, string(status)).Scan(&count)
	return count, err
}

// HasOpenForAdmin reports whether the admin already holds an open conversation
func (r *ConversationRepository) HasOpenForAdmin(adminID string) (bool, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM conversations WHERE status = ? AND admin_id = ?
	`, string(domain.StatusOpen), adminID).Scan(&count)
	return count > 0, err
}

// AssignIfPending atomically claims a pending conversation for one admin.
// The conditional update is what makes two racing admins resolve to exactly
// one winner.
func (r *ConversationRepository) AssignIfPending(id, adminID, adminName string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE conversations SET status = ?, admin_id = ?, admin_name = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(domain.StatusOpen), adminID, adminName, time.Now(), id, string(domain.StatusPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// CloseIfActive transitions a pending or open conversation to closed
func (r *ConversationRepository) CloseIfActive(id string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE conversations SET status = ?, updated_at = ?
		WHERE id = ? AND status != ?
	`, string(domain.StatusClosed), time.Now(), id, string(domain.StatusClosed))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DeleteIfClosed removes a conversation only when it is closed
func (r *ConversationRepository) DeleteIfClosed(id string) (bool, error) {
	res, err := r.db.Exec(`
		DELETE FROM conversations WHERE id = ? AND status = ?
	`, id, string(domain.StatusClosed))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ListClosedIDs returns the ids of all closed conversations
func (r *ConversationRepository) ListClosedIDs() ([]string, error) {
	rows, err := r.db.Query(`SELECT id FROM conversations WHERE status = ?`, string(domain.StatusClosed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteAllClosed removes every closed conversation and returns how many
func (r *ConversationRepository) DeleteAllClosed() (int, error) {
	res, err := r.db.Exec(`DELETE FROM conversations WHERE status = ?`, string(domain.StatusClosed))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// TouchLastMessage updates the list metadata and bumps the unread counter of
// the side that did not send
func (r *ConversationRepository) TouchLastMessage(id, content string, at time.Time, sender domain.SenderRole) error {
	unreadColumn := "visitor_unread"
	if sender == domain.RoleVisitor {
		unreadColumn = "admin_unread"
	}
	_, err := r.db.Exec(`
		UPDATE conversations
		SET last_message = ?, last_message_at = ?, updated_at = ?, `+unreadColumn+` = `+unreadColumn+` + 1
		WHERE id = ?
	`, content, at, at, id)
	return err
}

// MarkRead clears one side's unread counter
func (r *ConversationRepository) MarkRead(id string, side domain.SenderRole) error {
	column := "visitor_unread"
	if side == domain.RoleAdmin {
		column = "admin_unread"
	}
	_, err := r.db.Exec(`UPDATE conversations SET `+column+` = 0 WHERE id = ?`, id)
	return err
}

// SetAssistantStarted flips the assistant flag and reports whether this call
// was the first one. The flag is what keeps the welcome message from being
// emitted twice.
func (r *ConversationRepository) SetAssistantStarted(id string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE conversations SET assistant_started = 1, updated_at = ?
		WHERE id = ? AND assistant_started = 0
	`, time.Now(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
