package models

import "time"

// Event 活动，可选地与 Google Calendar 事件关联
type Event struct {
	Base
	Title                 string     `json:"title" db:"title"`
	Slug                  string     `json:"slug" db:"slug"`
	Description           string     `json:"description" db:"description"`
	Location              string     `json:"location" db:"location"`
	StartTime             time.Time  `json:"start_time" db:"start_time"`
	EndTime               *time.Time `json:"end_time" db:"end_time"`
	ImageURL              string     `json:"image_url" db:"image_url"`
	RegistrationURL       string     `json:"registration_url" db:"registration_url"`
	Capacity              *int       `json:"capacity" db:"capacity"`
	IsPublished           bool       `json:"is_published" db:"is_published"`
	GoogleCalendarEventID *string    `json:"google_calendar_event_id" db:"google_calendar_event_id"`
}

func (*Event) TableName() string { return "events" }

// RsvpStatus 报名状态
type RsvpStatus string

const (
	RsvpConfirmed RsvpStatus = "confirmed"
	RsvpCancelled RsvpStatus = "cancelled"
)

// Rsvp 活动报名，(event_id, email) 唯一
type Rsvp struct {
	Base
	EventID        string     `json:"event_id" db:"event_id"`
	Name           string     `json:"name" db:"name"`
	Email          string     `json:"email" db:"email"`
	Company        string     `json:"company" db:"company"`
	Guests         int        `json:"guests" db:"guests"`
	Status         RsvpStatus `json:"status" db:"status"`
	CalendarSynced bool       `json:"calendar_synced" db:"calendar_synced"`
}

func (*Rsvp) TableName() string { return "rsvps" }
