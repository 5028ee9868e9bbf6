package models

import "time"

// SpaceStatus 空间审核状态
type SpaceStatus string

const (
	SpacePending  SpaceStatus = "pending"
	SpaceApproved SpaceStatus = "approved"
	SpaceRejected SpaceStatus = "rejected"
)

// Valid reports whether s is one of the moderation states.
func (s SpaceStatus) Valid() bool {
	switch s {
	case SpacePending, SpaceApproved, SpaceRejected:
		return true
	}
	return false
}

// Space is a coworking-space directory listing
type Space struct {
	Base
	OwnerID         *string     `json:"owner_id" db:"owner_id"`
	Name            string      `json:"name" db:"name"`
	Slug            string      `json:"slug" db:"slug"`
	Description     string      `json:"description" db:"description"`
	Address         string      `json:"address" db:"address"`
	City            string      `json:"city" db:"city"`
	State           string      `json:"state" db:"state"`
	ZipCode         string      `json:"zip_code" db:"zip_code"`
	Latitude        *float64    `json:"latitude" db:"latitude"`
	Longitude       *float64    `json:"longitude" db:"longitude"`
	Website         string      `json:"website" db:"website"`
	Phone           string      `json:"phone" db:"phone"`
	Email           string      `json:"email" db:"email"`
	Amenities       StringList  `json:"amenities" db:"amenities"`
	Images          StringList  `json:"images" db:"images"`
	PriceRange      string      `json:"price_range" db:"price_range"`
	Featured        bool        `json:"featured" db:"featured"`
	SubmitterName   string      `json:"submitter_name" db:"submitter_name"`
	SubmitterEmail  string      `json:"submitter_email" db:"submitter_email"`
	Status          SpaceStatus `json:"status" db:"status"`
	RejectionReason string      `json:"rejection_reason" db:"rejection_reason"`
	ApprovedAt      *time.Time  `json:"approved_at" db:"approved_at"`
}

func (*Space) TableName() string { return "spaces" }

// ContactEmail 审核结果通知的收件人：提交人优先，其次是空间联系邮箱
func (s *Space) ContactEmail() string {
	if s.SubmitterEmail != "" {
		return s.SubmitterEmail
	}
	return s.Email
}
