package auth

import (
	"context"
	"errors"

	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

// PermissionModerateRemarks lets a user edit or delete other people's remarks.
const PermissionModerateRemarks = "moderate_remarks"

// RemarkPermissionChecker decides whether a user may edit or delete a remark.
type RemarkPermissionChecker interface {
	CanModifyRemark(ctx context.Context, organisationID string, remark *models.Remark, userID string) (bool, error)
}

type UserFinder interface {
	FindUser(ctx context.Context, organisationID, id string) (*models.OrgUser, error)
}

// DefaultRemarkPermissions allows the remark's author, and active users of
// the organisation holding the moderate_remarks permission.
type DefaultRemarkPermissions struct {
	Users UserFinder
}

func NewRemarkPermissionChecker(users UserFinder) *DefaultRemarkPermissions {
	return &DefaultRemarkPermissions{Users: users}
}

func (c *DefaultRemarkPermissions) CanModifyRemark(ctx context.Context, organisationID string, remark *models.Remark, userID string) (bool, error) {
	if remark == nil || userID == "" {
		return false, nil
	}
	if remark.UserID == userID {
		return true, nil
	}
	if c.Users == nil {
		return false, nil
	}
	user, err := c.Users.FindUser(ctx, organisationID, userID)
	if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrInvalidID) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.HasPermission(PermissionModerateRemarks), nil
}
