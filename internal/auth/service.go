package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "archivist"

// AuthService checks API credentials against the configured users and
// issues short-lived bearer tokens.
type AuthService struct {
	users     map[string]User
	jwtSecret []byte
	tokenTTL  time.Duration
}

// Claims represents JWT claims
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// NewAuthService validates cfg and builds the service. A missing secret is
// replaced by a random one, so tokens do not survive a restart.
func NewAuthService(cfg Config) (*AuthService, error) {
	users := make(map[string]User, len(cfg.Users))
	for _, u := range cfg.Users {
		if u.Username == "" {
			return nil, errors.New("auth user requires username")
		}
		if _, dup := users[u.Username]; dup {
			return nil, fmt.Errorf("duplicate auth user %q", u.Username)
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("auth user %q: password_hash is not a bcrypt hash: %w", u.Username, err)
		}
		users[u.Username] = u
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthService{users: users, jwtSecret: secret, tokenTTL: ttl}, nil
}

// HashPassword returns the bcrypt hash to put in password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Login checks a username/password pair and issues a bearer token.
func (s *AuthService) Login(username, password string) (*Token, error) {
	res, err := s.authenticateBasic(username, password)
	if err != nil {
		return nil, err
	}
	return s.generateJWT(res.Username, res.Roles)
}

// Authenticate extracts and validates credentials from r: a bearer token
// first, then HTTP basic auth.
func (s *AuthService) Authenticate(r *http.Request) (*AuthResult, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return s.authenticateJWT(strings.TrimSpace(parts[1]))
		}
	}
	if username, password, ok := r.BasicAuth(); ok {
		return s.authenticateBasic(username, password)
	}
	return &AuthResult{Success: false}, ErrInvalidCredentials
}

func (s *AuthService) authenticateBasic(username, password string) (*AuthResult, error) {
	if username == "" || password == "" {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	u, ok := s.users[username]
	if !ok {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	return &AuthResult{Success: true, Method: AuthMethodBasic, Username: u.Username, Roles: u.Roles}, nil
}

func (s *AuthService) authenticateJWT(tokenString string) (*AuthResult, error) {
	if tokenString == "" {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	// a user removed from config loses access even with a live token
	u, ok := s.users[claims.Username]
	if !ok {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	return &AuthResult{Success: true, Method: AuthMethodJWT, Username: u.Username, Roles: u.Roles}, nil
}

func (s *AuthService) generateJWT(username string, roles []string) (*Token, error) {
	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)
	claims := &Claims{
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   username,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{Type: "Bearer", Value: signed, ExpiresAt: expiresAt}, nil
}

var rolePermissions = map[string][]string{
	RoleAdmin:  {"*"},
	RoleWriter: {ActionRead, ActionWrite},
	RoleReader: {ActionRead},
}

// HasPermission reports whether any of roles grants action.
func HasPermission(roles []string, action string) bool {
	for _, role := range roles {
		for _, a := range rolePermissions[role] {
			if a == "*" || a == action {
				return true
			}
		}
	}
	return false
}
