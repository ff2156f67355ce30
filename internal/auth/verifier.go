// Package auth provides the single credential verification entry point used by
// the websocket handshake and the HTTP handlers.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Supported verification modes.
const (
	ModeDev  = "dev"
	ModeHMAC = "hmac"
)

var (
	ErrMissingToken   = errors.New("missing token")
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingSubject = errors.New("missing subject claim")
)

// Identity is the authenticated subject behind a session or request.
type Identity struct {
	SubjectID string `json:"subjectId"`
	Role      string `json:"role"`
	Admin     bool   `json:"admin"`
}

// IsAdmin reports whether the identity holds an administrative role.
func (i Identity) IsAdmin() bool { return i.Admin }

// Options configures a Verifier.
type Options struct {
	Mode         string
	HMACSecret   string
	SubjectClaim string
	RoleClaim    string
	AdminRoles   []string
}

// Verifier validates bearer credentials and extracts subject and role.
// Supports modes: dev (token is "subject:role", no signature) and hmac (HS256 JWT).
type Verifier struct {
	mode         string
	secret       []byte
	subjectClaim string
	roleClaim    string
	adminRoles   []string
	parser       *jwt.Parser
}

func NewVerifier(opts Options) (*Verifier, error) {
	mode := strings.ToLower(strings.TrimSpace(opts.Mode))
	if mode == "" {
		mode = ModeDev
	}
	switch mode {
	case ModeDev:
	case ModeHMAC:
		if opts.HMACSecret == "" {
			return nil, fmt.Errorf("auth: hmac mode requires a secret")
		}
	default:
		return nil, fmt.Errorf("auth: unsupported mode %q", opts.Mode)
	}
	admin := make([]string, 0, len(opts.AdminRoles))
	for _, r := range opts.AdminRoles {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			admin = append(admin, r)
		}
	}
	if len(admin) == 0 {
		admin = []string{"admin"}
	}
	return &Verifier{
		mode:         mode,
		secret:       []byte(opts.HMACSecret),
		subjectClaim: orDefault(opts.SubjectClaim, "sub"),
		roleClaim:    orDefault(opts.RoleClaim, "role"),
		adminRoles:   admin,
		parser:       jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

func orDefault(v, d string) string {
	if strings.TrimSpace(v) == "" {
		return d
	}
	return v
}

// Mode returns the active verification mode.
func (v *Verifier) Mode() string { return v.mode }

// Verify checks a credential. A leading "Bearer " is stripped so header
// values can be passed through unchanged.
func (v *Verifier) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	if v.mode == ModeDev {
		subject, role, ok := strings.Cut(token, ":")
		if !ok || subject == "" {
			return Identity{}, fmt.Errorf("%w: expected subject:role", ErrInvalidToken)
		}
		return v.identity(subject, role), nil
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	subject, _ := claims[v.subjectClaim].(string)
	if subject == "" {
		return Identity{}, ErrMissingSubject
	}
	role, _ := claims[v.roleClaim].(string)
	return v.identity(subject, role), nil
}

func (v *Verifier) identity(subject, role string) Identity {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = "user"
	}
	return Identity{SubjectID: subject, Role: role, Admin: slices.Contains(v.adminRoles, role)}
}

// FromRequest verifies the request's Authorization header.
func (v *Verifier) FromRequest(r *http.Request) (Identity, error) {
	return v.Verify(BearerToken(r))
}

// BearerToken returns the bearer credential of r, or "".
func BearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}
