package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

// TokenTypeService is the only token this service accepts. Callers are
// internal systems (call pipeline, billing, operator tooling), not end users.
const TokenTypeService TokenType = "service"

// Claims are the only supported JWT claims shape for this service.
// Subject names the calling service. WorkspaceID scopes operator tokens to
// one tenant; other roles may leave it empty.
type Claims struct {
	jwt.RegisteredClaims

	Role        string    `json:"role"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	TokenType   TokenType `json:"token_type"`
}
