package auth

import (
	"errors"
	"time"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthMethod represents the type of authentication
type AuthMethod string

const (
	AuthMethodBasic AuthMethod = "basic" // username/password
	AuthMethodJWT   AuthMethod = "jwt"   // bearer token issued by Login
)

// Roles understood by HasPermission.
const (
	RoleAdmin  = "admin"
	RoleWriter = "writer"
	RoleReader = "reader"
)

// Actions guarded on the archiver API.
const (
	ActionRead  = "read"
	ActionWrite = "write"
)

// User is one API account. PasswordHash is a bcrypt hash.
type User struct {
	Username     string   `toml:"username" mapstructure:"username" json:"username"`
	PasswordHash string   `toml:"password_hash" mapstructure:"password_hash" json:"-"`
	Roles        []string `toml:"roles" mapstructure:"roles" json:"roles"`
}

// Config is the [auth] section. Auth is off unless Enabled is set.
type Config struct {
	Enabled   bool          `toml:"enabled" mapstructure:"enabled"`
	JWTSecret string        `toml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `toml:"token_ttl" mapstructure:"token_ttl"`
	Users     []User        `toml:"users" mapstructure:"users"`
}

// AuthResult represents the result of authentication
type AuthResult struct {
	Success  bool       `json:"success"`
	Method   AuthMethod `json:"method,omitempty"`
	Username string     `json:"username,omitempty"`
	Roles    []string   `json:"roles,omitempty"`
}

// Token represents a JWT token
type Token struct {
	Type      string    `json:"type"`  // "Bearer"
	Value     string    `json:"value"` // JWT token string
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginRequest is the body of the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
