package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
)

// ExpenseFilter narrows an expense listing.
type ExpenseFilter struct {
	OrganisationID string
	Disabled       *bool
	From           *time.Time
	To             *time.Time
}

// RemarkStore defines the remark operations shared by every record kind.
type RemarkStore interface {
	FindRemarks(ctx context.Context, organisationID, parentID string) ([]models.Remark, error)
	FindRemark(ctx context.Context, organisationID, parentID, remarkID string) (*models.Remark, error)
	PushRemark(ctx context.Context, organisationID, parentID string, remark models.Remark, entry models.AuditLog) ([]models.Remark, error)
	SetRemarkText(ctx context.Context, organisationID, parentID, remarkID, text string, entry models.AuditLog) ([]models.Remark, error)
	PullRemark(ctx context.Context, organisationID, parentID, remarkID string, entry models.AuditLog) ([]models.Remark, error)
}

// ExpenseCollection defines the interface for expense data operations.
type ExpenseCollection interface {
	RemarkStore
	InsertExpense(ctx context.Context, expense *models.Expense) error
	ExpenseCodeExists(ctx context.Context, organisationID, code string) (bool, error)
	FindExpenses(ctx context.Context, filter ExpenseFilter) ([]models.Expense, error)
	FindExpenseByID(ctx context.Context, organisationID, id string) (*models.Expense, error)
	FindExpenseByCode(ctx context.Context, organisationID, code string) (*models.Expense, error)
	UpdateExpense(ctx context.Context, organisationID, id string, patch models.ExpensePatch, entry models.AuditLog) (*models.Expense, error)
	SetExpenseDisabled(ctx context.Context, organisationID, code string, disabled bool, entry models.AuditLog) (*models.Expense, error)
	PushAttachments(ctx context.Context, organisationID, id string, attachments map[models.AttachmentKind][]models.Attachment, entry models.AuditLog) (*models.Expense, error)
	PullAttachment(ctx context.Context, organisationID, id string, kind models.AttachmentKind, attachmentID string, entry models.AuditLog) (*models.Expense, error)
}

// RepairCollection defines the interface for tool and tyre repair data operations.
type RepairCollection interface {
	RemarkStore
	InsertRepair(ctx context.Context, repair *models.Repair) error
	RepairCodeExists(ctx context.Context, organisationID, code string) (bool, error)
	FindRepairs(ctx context.Context, organisationID, assetRef string) ([]models.Repair, error)
	FindRepairByID(ctx context.Context, organisationID, id string) (*models.Repair, error)
	UpdateRepair(ctx context.Context, organisationID, id string, patch models.RepairPatch, entry models.AuditLog) (*models.Repair, error)
	DeleteRepair(ctx context.Context, organisationID, id string) error
}

// AssetCollection defines the operations on repairable assets (tools, tyres).
type AssetCollection interface {
	AssetExists(ctx context.Context, organisationID, ref string) (bool, error)
	AppendAssetLog(ctx context.Context, organisationID, ref string, entry models.AuditLog) error
}

// DirectoryCollection defines lookups on the organisation's sibling records.
type DirectoryCollection interface {
	FindUser(ctx context.Context, organisationID, id string) (*models.OrgUser, error)
	FindUsers(ctx context.Context, organisationID string, ids []string) (map[string]models.OrgUser, error)
	FindVehicle(ctx context.Context, organisationID, id string) (*models.Vehicle, error)
	FindVendor(ctx context.Context, organisationID, id string) (*models.Vendor, error)
	FindTrip(ctx context.Context, organisationID, id string) (*models.Trip, error)
}
