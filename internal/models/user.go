package models

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents user roles within an organisation
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// OrgUser is a member of an organisation. The back office only reads them.
type OrgUser struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	OrganisationID string             `bson:"organisationId" json:"organisationId"`
	FirstName      string             `bson:"firstName" json:"firstName"`
	LastName       string             `bson:"lastName" json:"lastName"`
	Email          string             `bson:"email" json:"email"`
	Role           Role               `bson:"role" json:"role"`
	IsActive       bool               `bson:"isActive" json:"isActive"`
}

// FullName joins first and last name.
func (u OrgUser) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Claims represents JWT claims
type Claims struct {
	UserID         string `json:"user_id"`
	OrganisationID string `json:"organisation_id"`
	Role           Role   `json:"role"`
	Exp            int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleOperator, RoleViewer:
		return true
	default:
		return false
	}
}

// HasPermission checks if a user has permission for a specific action
func (u *OrgUser) HasPermission(action string) bool {
	if !u.IsActive {
		return false
	}
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleManager:
		return action != "manage_users"
	case RoleOperator:
		return action == "create_expense" || action == "update_expense" ||
			action == "create_repair" || action == "update_repair" ||
			action == "add_remark" || action == "view_reports"
	case RoleViewer:
		return action == "view_reports" || action == "add_remark"
	default:
		return false
	}
}
