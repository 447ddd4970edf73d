package backend

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/mtuog/CDW-sub002/internal/domain"
)

// legacyBusyMarker is the backend's historical error text for the
// one-active-conversation-per-admin conflict. Newer backends also send a
// structured code; the substring match remains for compatibility.
const legacyBusyMarker = "already handling another active conversation"

// StatusError is a non-2xx REST response. The server's message text is
// preserved unchanged; Unwrap maps known conditions onto domain sentinels so
// callers can use errors.Is.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

// Error implements error
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend: %d %s", e.Status, http.StatusText(e.Status))
}

// Unwrap maps the response onto a domain sentinel, preferring the structured
// code over the legacy message substring
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case domain.CodeAdminBusy:
		return domain.ErrAdminBusy
	case domain.CodeAlreadyAssigned:
		return domain.ErrAlreadyAssigned
	case domain.CodeClosed:
		return domain.ErrConversationClosed
	case domain.CodePending:
		return domain.ErrConversationPending
	case domain.CodeNotClosed:
		return domain.ErrConversationNotClosed
	case domain.CodeNotFound:
		return domain.ErrNotFound
	}
	if strings.Contains(e.Message, legacyBusyMarker) {
		return domain.ErrAdminBusy
	}
	switch e.Status {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrUnauthorized
	}
	return nil
}
