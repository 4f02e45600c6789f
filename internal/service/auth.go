package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Role names carried in session tokens.
const (
	RoleAdmin    = "admin"
	RoleReseller = "reseller"
)

// Principal is the authenticated identity extracted from a session token.
type Principal struct {
	Role     string
	ID       int64
	Username string
}

// AuthService authenticates admins and resellers against bcrypt password
// hashes and issues signed JWT session tokens.
type AuthService struct {
	store     *store.Store
	jwtSecret []byte
	ttl       time.Duration
}

// NewAuthService creates an AuthService. ttl bounds session token lifetime.
func NewAuthService(st *store.Store, jwtSecret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		store:     st,
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
	}
}

// TTL returns the configured session token lifetime.
func (s *AuthService) TTL() time.Duration {
	return s.ttl
}

// HashPassword returns the bcrypt hash of a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// AuthenticateAdmin verifies admin credentials. Unknown usernames and wrong
// passwords are indistinguishable to the caller. On success the admin's
// last-login timestamp is updated.
func (s *AuthService) AuthenticateAdmin(ctx context.Context, username, password string) (*model.Admin, error) {
	admin, err := s.store.GetAdminByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	_ = s.store.UpdateAdminLastLogin(ctx, admin.ID)
	return admin, nil
}

// AuthenticateReseller verifies reseller credentials and updates last-login.
func (s *AuthService) AuthenticateReseller(ctx context.Context, username, password string) (*model.Reseller, error) {
	res, err := s.store.GetResellerByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(res.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	_ = s.store.UpdateResellerLastLogin(ctx, res.ID)
	return res, nil
}

// IssueToken creates a signed session token for the given principal.
func (s *AuthService) IssueToken(role string, id int64, username string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Role:     role,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    "keygate",
		},
		AccountID: id,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken verifies a session token and returns the principal it
// carries.
func (s *AuthService) ValidateToken(tokenStr string) (*Principal, error) {
	claims := &sessionClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}
	if claims.Role != RoleAdmin && claims.Role != RoleReseller {
		return nil, ErrInvalidCredentials
	}

	return &Principal{
		Role:     claims.Role,
		ID:       claims.AccountID,
		Username: claims.Username,
	}, nil
}

type sessionClaims struct {
	Role      string `json:"role"`
	AccountID int64  `json:"account_id"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}
