package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/riaz37/groupbuy-realtime/pkg/state"
)

var (
	ErrMissingUserID   = errors.New("authenticate payload missing userId")
	ErrMissingToken    = errors.New("authenticate payload missing token")
	ErrSubjectMismatch = errors.New("token subject does not match claimed userId")
	ErrInvalidToken    = errors.New("invalid token")
)

// Credentials is an identity the handshake has accepted.
type Credentials struct {
	UserID string
	Role   state.Role
}

// AppClaims is the JWT claims structure issued by the main application's
// session layer.
type AppClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates the identity claimed in an authenticate message.
// With a signing secret configured, a token signed by the session issuer is
// required and is the authority for the role. With no secret the claimed
// identity is trusted as-is, which is only suitable for development.
type TokenVerifier struct {
	secret string
	logger *slog.Logger
}

func NewTokenVerifier(logger *slog.Logger, secret string) *TokenVerifier {
	if secret == "" {
		logger.Warn("No JWT secret configured; claimed identities are trusted without verification")
	}
	return &TokenVerifier{
		secret: secret,
		logger: logger.With(slog.String("component", "token_verifier")),
	}
}

func (v *TokenVerifier) Verify(userID, claimedRole, tokenString string) (Credentials, error) {
	if userID == "" {
		return Credentials{}, ErrMissingUserID
	}

	if v.secret == "" {
		return Credentials{UserID: userID, Role: normalizeRole(claimedRole)}, nil
	}

	if tokenString == "" {
		return Credentials{}, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(v.secret), nil
	})
	if err != nil || !token.Valid {
		return Credentials{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*AppClaims)
	if !ok || claims.Subject == "" {
		return Credentials{}, fmt.Errorf("%w: missing 'sub' claim", ErrInvalidToken)
	}
	if claims.Subject != userID {
		return Credentials{}, ErrSubjectMismatch
	}

	// The signed role wins over whatever the client claimed.
	return Credentials{UserID: claims.Subject, Role: normalizeRole(claims.Role)}, nil
}

func normalizeRole(role string) state.Role {
	if role == "" {
		return state.RoleUser
	}
	return state.Role(strings.ToUpper(role))
}
