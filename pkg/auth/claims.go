package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	AdminID  uuid.UUID
	Username string
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to admins. The
// registered ID (jti) names the server-side session.
type AccessTokenClaims struct {
	AdminID  uuid.UUID `json:"admin_id"`
	Username string    `json:"username"`
	jwt.RegisteredClaims
}
