// file: internals/helpers/auth/identity.go
package helper

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

/* ============================================
   Locals Keys (set by the JWT middleware)
   ============================================ */

const (
	LocIdentity = "identity"
	LocUserID   = "user_id"
	LocSchoolID = "school_id"
	LocRole     = "role"
)

const (
	RoleAdmin   = "admin"
	RoleBursar  = "bursar"
	RoleTeacher = "teacher"
	RoleParent  = "parent"
	RoleStudent = "student"

	PermFinance = "finance"
)

// Identity is the resolved caller of one request.
type Identity struct {
	UserID      uuid.UUID  `json:"user_id"`
	Role        string     `json:"role"`
	SchoolID    uuid.UUID  `json:"school_id"`
	StudentID   *uuid.UUID `json:"student_id,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
}

func (i *Identity) HasPermission(p string) bool {
	if i == nil {
		return false
	}
	return slices.ContainsFunc(i.Permissions, func(s string) bool { return strings.EqualFold(s, p) })
}

// IsFinanceStaff: school admins and bursars always, others only with the
// finance permission.
func (i *Identity) IsFinanceStaff() bool {
	if i == nil {
		return false
	}
	switch strings.ToLower(i.Role) {
	case RoleAdmin, RoleBursar:
		return true
	}
	return i.HasPermission(PermFinance)
}

func SetIdentity(c *fiber.Ctx, id *Identity) {
	c.Locals(LocIdentity, id)
	c.Locals(LocUserID, id.UserID.String())
	c.Locals(LocSchoolID, id.SchoolID.String())
	c.Locals(LocRole, id.Role)
}

// GetIdentity returns the caller or a 401 when the route was reached
// without authentication.
func GetIdentity(c *fiber.Ctx) (*Identity, error) {
	if id, ok := c.Locals(LocIdentity).(*Identity); ok && id != nil && id.UserID != uuid.Nil {
		return id, nil
	}
	return nil, fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
}

// RequireFinance guards staff-only routes.
func RequireFinance() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := GetIdentity(c)
		if err != nil {
			return err
		}
		if !id.IsFinanceStaff() {
			return fiber.NewError(fiber.StatusForbidden, "finance permission required")
		}
		return c.Next()
	}
}
