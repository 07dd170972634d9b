package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/eventplanner/backend/internal/models"
	"github.com/eventplanner/backend/pkg/utils"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// PurposePasswordReset marks tokens that may only be used to reset a password.
const PurposePasswordReset = "password_reset"

// Claims holds JWT claims including user ID, role and organization.
type Claims struct {
	UserID         uuid.UUID  `json:"user_id"`
	Email          string     `json:"email"`
	Role           string     `json:"role"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	Purpose        string     `json:"purpose,omitempty"`
	Fingerprint    string     `json:"fp,omitempty"`
	jwt.RegisteredClaims
}

// JWTService handles token generation and validation.
type JWTService struct {
	secret      []byte
	expire      time.Duration
	resetExpire time.Duration
	now         func() time.Time
}

// NewJWTService creates a JWT service.
func NewJWTService(secret string, expireHours, resetMinutes int) *JWTService {
	return &JWTService{
		secret:      []byte(secret),
		expire:      time.Duration(expireHours) * time.Hour,
		resetExpire: time.Duration(resetMinutes) * time.Minute,
		now:         time.Now,
	}
}

// Generate creates an access token for the user.
func (s *JWTService) Generate(u *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:         u.ID,
		Email:          u.Email,
		Role:           string(u.Role),
		OrganizationID: u.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expire)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	return s.sign(claims)
}

// GenerateReset creates a password-reset token bound to the user's current password hash,
// so it stops validating as soon as the password changes.
func (s *JWTService) GenerateReset(u *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:      u.ID,
		Email:       u.Email,
		Purpose:     PurposePasswordReset,
		Fingerprint: utils.Fingerprint(u.Password),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.resetExpire)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	return s.sign(claims)
}

// Validate parses an access token. Reset tokens are rejected.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateReset parses a password-reset token.
func (s *JWTService) ValidateReset(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != PurposePasswordReset || claims.Fingerprint == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ResetMatches reports whether a reset token still matches the user's password hash.
func ResetMatches(claims *Claims, u *models.User) bool {
	return claims.UserID == u.ID && claims.Fingerprint == utils.Fingerprint(u.Password)
}

func (s *JWTService) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
