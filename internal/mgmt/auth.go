package mgmt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/reel-scout/internal/requestid"
)

// Role defines the access level of a caller.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleReadOnly Role = "readonly"
)

// Auth modes.
const (
	AuthAPIKey = "api-key"
	AuthJWT    = "jwt"
	AuthNone   = "none"
)

const (
	localsRole    = "role"
	localsSubject = "subject"
)

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Mode      string // "api-key", "jwt", "none"
	APIKey    string // from env MGMT_API_KEY
	JWTSecret string // HS256 secret, from env MGMT_JWT_SECRET
}

// TokenClaims are the claims accepted in jwt mode. A missing role means
// read-only access.
type TokenClaims struct {
	Role Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for subject.
func IssueToken(secret, subject string, role Role, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := TokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseToken(secret, raw string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Role == "" {
		claims.Role = RoleReadOnly
	}
	if _, ok := roleLevel[claims.Role]; !ok {
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}
	return claims, nil
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

// NewAuthMiddleware returns a Fiber middleware that validates the Authorization header.
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	logger = logger.With().Str("component", "mgmt_auth").Logger()
	return func(c *fiber.Ctx) error {
		if cfg.Mode == AuthNone {
			c.Locals(localsRole, RoleAdmin)
			c.Locals(localsSubject, "anonymous")
			return c.Next()
		}
		if isProbe(c.Path()) {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return problemResponse(c, fiber.StatusUnauthorized,
				"missing_auth", "Unauthorized",
				"Authorization header is required")
		}
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_auth_scheme", "Unauthorized",
				"Authorization header must use Bearer scheme")
		}

		switch cfg.Mode {
		case AuthAPIKey:
			if cfg.APIKey == "" || token != cfg.APIKey {
				logger.Warn().Str("path", c.Path()).Str("method", c.Method()).Msg("Unauthorized request: invalid API key")
				return problemResponse(c, fiber.StatusUnauthorized,
					"invalid_api_key", "Unauthorized", "Invalid API key")
			}
			c.Locals(localsRole, RoleAdmin)
			c.Locals(localsSubject, "api-key")
			return c.Next()

		case AuthJWT:
			claims, err := parseToken(cfg.JWTSecret, token)
			if err != nil {
				logger.Warn().Err(err).Str("path", c.Path()).Msg("Unauthorized request: invalid token")
				return problemResponse(c, fiber.StatusUnauthorized,
					"invalid_token", "Unauthorized", "Invalid or expired token")
			}
			c.Locals(localsRole, claims.Role)
			c.Locals(localsSubject, claims.Subject)
			return c.Next()
		}

		return problemResponse(c, fiber.StatusInternalServerError,
			"auth_misconfigured", "Internal Server Error",
			"Unknown auth mode "+cfg.Mode)
	}
}

var roleLevel = map[Role]int{
	RoleReadOnly: 1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// requireRole returns a middleware that enforces a minimum role level.
func requireRole(minRole Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals(localsRole).(Role)
		if roleLevel[role] < roleLevel[minRole] {
			return problemResponse(c, fiber.StatusForbidden,
				"insufficient_role", "Forbidden",
				"Insufficient permissions for this operation")
		}
		return c.Next()
	}
}

// actor names the caller in the decision journal.
func actor(c *fiber.Ctx) string {
	sub, _ := c.Locals(localsSubject).(string)
	if sub == "" {
		sub = "unknown"
	}
	return "mgmt:" + sub
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:      errType,
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  c.Path(),
		RequestID: requestid.FromFiber(c),
	})
}
