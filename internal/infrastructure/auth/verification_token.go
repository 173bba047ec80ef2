// Package auth issues and checks the signed tokens used in email
// verification links.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// PurposeEmailVerification is the only purpose this service signs.
const PurposeEmailVerification = "email_verification"

// DefaultVerificationTTL is how long a verification link stays valid.
const DefaultVerificationTTL = 24 * time.Hour

// VerificationClaims are the JWT claims of a verification token.
type VerificationClaims struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// VerificationTokenService signs and validates HS256 verification tokens.
type VerificationTokenService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

// NewVerificationTokenService creates a service. ttl <= 0 means 24h.
func NewVerificationTokenService(signingKey, issuer string, ttl time.Duration) *VerificationTokenService {
	if ttl <= 0 {
		ttl = DefaultVerificationTTL
	}
	return &VerificationTokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
	}
}

// TTL returns the token lifetime.
func (s *VerificationTokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for userID and email.
func (s *VerificationTokenService) Issue(userID uuid.UUID, email string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, VerificationClaims{
		UserID:  userID.String(),
		Email:   email,
		Purpose: PurposeEmailVerification,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("auth: sign verification token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and purpose and returns the user id and
// email the token was issued for. Every failure is shared.ErrInvalidToken.
func (s *VerificationTokenService) Verify(tokenString string) (uuid.UUID, string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &VerificationClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, "", shared.WrapError("account", "VerifyEmail", shared.ErrValidation, "verification token has expired", shared.ErrInvalidToken)
		}
		return uuid.Nil, "", shared.ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*VerificationClaims)
	if !ok || !parsed.Valid || claims.Purpose != PurposeEmailVerification {
		return uuid.Nil, "", shared.ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, "", shared.ErrInvalidToken
	}
	return userID, claims.Email, nil
}
