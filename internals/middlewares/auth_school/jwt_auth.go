package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	helperAuth "schoolfinance_backend/internals/helpers/auth"
)

type AuthJWTOpts struct {
	Secret              string
	BlacklistChecker    func(rawToken string) (bool, error) // true when revoked
	AllowCookieFallback bool                                // read access_token cookie when there is no Bearer
}

// AuthJWT verifies an HS256 token and stores the caller as a
// helperAuth.Identity in locals.
func AuthJWT(o AuthJWTOpts) fiber.Handler {
	secret := strings.TrimSpace(o.Secret)
	if secret == "" {
		panic("AuthJWT: secret is required")
	}

	return func(c *fiber.Ctx) error {
		raw := ""
		if authz := strings.TrimSpace(c.Get(fiber.HeaderAuthorization)); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			raw = strings.TrimSpace(authz[7:])
		} else if o.AllowCookieFallback {
			raw = strings.TrimSpace(c.Cookies("access_token"))
		}
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
		}

		if o.BlacklistChecker != nil {
			if black, err := o.BlacklistChecker(raw); err == nil && black {
				return fiber.NewError(fiber.StatusUnauthorized, "Token revoked")
			}
		}

		tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !tok.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
		}

		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
		}

		id, ferr := identityFromClaims(claims)
		if ferr != nil {
			return ferr
		}
		c.Locals("jwt_claims", claims)
		helperAuth.SetIdentity(c, id)
		return c.Next()
	}
}

// rolePriority picks the effective role when the token carries a list.
var rolePriority = []string{
	helperAuth.RoleAdmin,
	helperAuth.RoleBursar,
	helperAuth.RoleTeacher,
	helperAuth.RoleParent,
	helperAuth.RoleStudent,
}

func identityFromClaims(claims jwt.MapClaims) (*helperAuth.Identity, *fiber.Error) {
	// user id: id, sub, user_id in order of preference
	rawUID := strClaim(claims, "id")
	if rawUID == "" {
		rawUID = strClaim(claims, "sub")
	}
	if rawUID == "" {
		rawUID = strClaim(claims, "user_id")
	}
	uid, err := uuid.Parse(rawUID)
	if err != nil || uid == uuid.Nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid user id in token")
	}

	sid, err := uuid.Parse(strClaim(claims, "school_id"))
	if err != nil || sid == uuid.Nil {
		return nil, fiber.NewError(fiber.StatusForbidden, "Token has no school scope")
	}

	id := &helperAuth.Identity{
		UserID:      uid,
		SchoolID:    sid,
		Role:        strings.ToLower(strClaim(claims, "role")),
		Permissions: readStringSlice(claims["permissions"]),
	}
	if id.Role == "" {
		id.Role = pickRole(readStringSlice(claims["roles"]))
	}
	if s := strClaim(claims, "student_id"); s != "" {
		if stID, err := uuid.Parse(s); err == nil {
			id.StudentID = &stID
		}
	}
	return id, nil
}

func pickRole(roles []string) string {
	has := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		has[strings.ToLower(r)] = struct{}{}
	}
	for _, want := range rolePriority {
		if _, ok := has[want]; ok {
			return want
		}
	}
	return "user"
}

// strClaim returns a trimmed string claim or "".
func strClaim(m jwt.MapClaims, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// readStringSlice accepts []string or []any claims.
func readStringSlice(v any) []string {
	out := make([]string, 0)
	switch t := v.(type) {
	case []string:
		for _, s := range t {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, it := range t {
			if s, ok := it.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
