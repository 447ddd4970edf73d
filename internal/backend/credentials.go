package backend

import (
	"fmt"

	"github.com/mtuog/CDW-sub002/internal/domain"
)

// CredentialProvider supplies the bearer credential for a role. Injecting it
// keeps token storage out of the request path and makes clients testable.
type CredentialProvider interface {
	Token(role domain.SenderRole) (string, error)
}

// StaticCredentials is a CredentialProvider over fixed tokens
type StaticCredentials struct {
	Visitor string
	Admin   string
}

// Token returns the stored token for role
func (s StaticCredentials) Token(role domain.SenderRole) (string, error) {
	var token string
	switch role {
	case domain.RoleVisitor:
		token = s.Visitor
	case domain.RoleAdmin:
		token = s.Admin
	default:
		return "", fmt.Errorf("no credential for role %q: %w", role, domain.ErrUnauthorized)
	}
	if token == "" {
		return "", fmt.Errorf("missing %s credential: %w", role, domain.ErrUnauthorized)
	}
	return token, nil
}
