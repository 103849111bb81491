package auth

import (
	"errors"
	"net/http"
	"strings"

	"nesavent/internal/models"
)

// ExtractTokenFromRequest extracts a bearer token from the Authorization header.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// Claims are the token fields this service reads. Keycloak style tokens carry
// roles under realm_access; tokens minted by the identity service carry a
// single role claim.
type Claims struct {
	Sub         string `json:"sub"`
	Role        string `json:"role"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

var rolePrecedence = []models.Role{models.RoleAdmin, models.RoleMitra, models.RoleMahasiswa, models.RoleUser}

// Caller resolves the principal. With several realm roles the most
// privileged one wins; no known role means a plain user.
func (c Claims) Caller() (models.Caller, error) {
	if c.Sub == "" {
		return models.Caller{}, errors.New("subject claim not found in token")
	}
	if c.Role != "" {
		return models.Caller{UserID: c.Sub, Role: models.Role(strings.ToLower(c.Role))}, nil
	}
	held := make(map[models.Role]bool, len(c.RealmAccess.Roles))
	for _, r := range c.RealmAccess.Roles {
		held[models.Role(strings.ToLower(r))] = true
	}
	for _, r := range rolePrecedence {
		if held[r] {
			return models.Caller{UserID: c.Sub, Role: r}, nil
		}
	}
	return models.Caller{UserID: c.Sub, Role: models.RoleUser}, nil
}
