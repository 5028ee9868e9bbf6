package models

import "time"

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// PendingApplication 会员申请，只能从 pending 审核一次
type PendingApplication struct {
	Base
	Name           string            `json:"name" db:"name"`
	Email          string            `json:"email" db:"email"`
	Phone          string            `json:"phone" db:"phone"`
	Company        string            `json:"company" db:"company"`
	Website        string            `json:"website" db:"website"`
	MembershipType string            `json:"membership_type" db:"membership_type"`
	Message        string            `json:"message" db:"message"`
	Status         ApplicationStatus `json:"status" db:"status"`
	ReviewNotes    string            `json:"review_notes" db:"review_notes"`
	ReviewedBy     *string           `json:"reviewed_by" db:"reviewed_by"`
	ReviewedAt     *time.Time        `json:"reviewed_at" db:"reviewed_at"`
	ProfileID      *string           `json:"profile_id" db:"profile_id"`
}

func (*PendingApplication) TableName() string { return "pending_applications" }
