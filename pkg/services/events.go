package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coworking-alliance-backend/pkg/calendar"
	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/models"
	"coworking-alliance-backend/pkg/notify"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
)

// SyncLookback 同步时向前回看的时间
const SyncLookback = 30 * 24 * time.Hour

// CalendarEventInput create-calendar-event 请求体；eventId 为空时只在 Google 侧创建
type CalendarEventInput struct {
	EventID     string     `json:"eventId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	TimeZone    string     `json:"timeZone"`
	Attendees   []string   `json:"attendees"`
}

// AttendeeInput add-calendar-attendee 请求体
type AttendeeInput struct {
	EventID string `json:"eventId"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// RsvpInput 公开报名请求体
type RsvpInput struct {
	SubmissionMeta
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Guests  int    `json:"guests"`
}

// InviteEmailsInput send-event-invites 请求体
type InviteEmailsInput struct {
	EventID string   `json:"eventId"`
	Emails  []string `json:"emails"`
	Message string   `json:"message"`
}

// SyncResult 一次日历同步的统计
type SyncResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// EventInviteResult 活动邀请发送结果
type EventInviteResult struct {
	Sent   int      `json:"sent"`
	Failed []string `json:"failed"`
}

// EventService 活动、报名与 Google Calendar 同步
type EventService struct {
	db         database.DatabaseInterface
	notifier   *notify.Notifier
	guard      *SubmissionService
	calendar   CalendarAPI
	events     *Collection[models.Event, *models.Event]
	rsvps      *Collection[models.Rsvp, *models.Rsvp]
	calendarID string
	baseURL    string
	now        func() time.Time
}

// calendarTarget 返回要操作的日历 ID；未授权时返回 ErrCalendarNotConnected
func (s *EventService) calendarTarget(ctx context.Context) (string, error) {
	if s.calendar == nil {
		return "", ErrCalendarNotConnected
	}
	token, err := calendar.LoadAdminToken(ctx, s.db)
	if err != nil {
		return "", err
	}
	if !token.CalendarConnected() {
		return "", ErrCalendarNotConnected
	}
	switch {
	case token.CalendarID != "":
		return token.CalendarID, nil
	case s.calendarID != "":
		return s.calendarID, nil
	}
	return "primary", nil
}

func calendarError(err error, what string) error {
	if errors.Is(err, calendar.ErrNotConnected) {
		return fmt.Errorf("%s: %w", what, ErrCalendarNotConnected)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// PushToCalendar 在 Google 日历中创建事件；关联本地活动时写回 google_calendar_event_id
func (s *EventService) PushToCalendar(ctx context.Context, in CalendarEventInput) (*models.Event, *calendar.RemoteEvent, error) {
	calID, err := s.calendarTarget(ctx)
	if err != nil {
		return nil, nil, err
	}

	var event *models.Event
	input := calendar.EventInput{
		Summary:     in.Title,
		Description: in.Description,
		Location:    in.Location,
		Start:       in.StartTime,
		TimeZone:    in.TimeZone,
		Attendees:   in.Attendees,
	}
	if in.EndTime != nil {
		input.End = *in.EndTime
	}

	if in.EventID != "" {
		event, err = s.events.Get(ctx, in.EventID)
		if err != nil {
			return nil, nil, err
		}
		if event.GoogleCalendarEventID != nil {
			return nil, nil, fmt.Errorf("event %s is already on the calendar: %w", event.ID, ErrConflict)
		}
		input.Summary = event.Title
		input.Description = event.Description
		input.Location = event.Location
		input.Start = event.StartTime
		if event.EndTime != nil {
			input.End = *event.EndTime
		}
	}
	if strings.TrimSpace(input.Summary) == "" || input.Start.IsZero() {
		return nil, nil, invalidf("title and startTime are required")
	}

	remote, err := s.calendar.CreateEvent(ctx, calID, input)
	if err != nil {
		return nil, nil, calendarError(err, "create calendar event")
	}

	if event != nil {
		id := remote.ID
		event.GoogleCalendarEventID = &id
		if err := s.db.Update(ctx, event); err != nil {
			return nil, nil, storeError(err, "link event %s", event.ID)
		}
	}
	return event, remote, nil
}

// SyncCalendar 把 Google 日历事件同步到 events 表：按 google_calendar_event_id 存在则更新，否则插入
//
// 远端已取消的事件跳过；远端删除不会删除本地记录
func (s *EventService) SyncCalendar(ctx context.Context) (*SyncResult, error) {
	calID, err := s.calendarTarget(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := s.calendar.ListEvents(ctx, calID, s.now().Add(-SyncLookback))
	if err != nil {
		return nil, calendarError(err, "list calendar events")
	}

	result := &SyncResult{}
	for _, re := range remote {
		if re.ID == "" || re.Cancelled() || re.Start.IsZero() {
			result.Skipped++
			continue
		}

		existing, err := s.events.FindOne(ctx, map[string]interface{}{"google_calendar_event_id": re.ID})
		switch {
		case err == nil:
			if _, err := s.events.Update(ctx, existing.ID, func(e *models.Event) error {
				applyRemote(e, re)
				return nil
			}); err != nil {
				return result, err
			}
			result.Updated++
		case errors.Is(err, ErrNotFound):
			event := &models.Event{IsPublished: true}
			applyRemote(event, re)
			id := re.ID
			event.GoogleCalendarEventID = &id
			if err := s.events.Create(ctx, event); err != nil {
				return result, err
			}
			result.Created++
		default:
			return result, err
		}
	}

	log.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Msg("📅 Google Calendar sync finished")
	return result, nil
}

func applyRemote(e *models.Event, re calendar.RemoteEvent) {
	e.Title = re.Summary
	if strings.TrimSpace(e.Title) == "" {
		e.Title = "Untitled event"
	}
	e.Description = re.Description
	e.Location = re.Location
	e.StartTime = re.Start
	e.EndTime = re.End
}

// AddAttendee 把参与人加入已关联 Google 的活动
func (s *EventService) AddAttendee(ctx context.Context, in AttendeeInput) (bool, error) {
	addr, err := requireEmail("email", in.Email)
	if err != nil {
		return false, err
	}
	event, err := s.events.Get(ctx, in.EventID)
	if err != nil {
		return false, err
	}
	if event.GoogleCalendarEventID == nil {
		return false, invalidf("event %s is not linked to Google Calendar", event.ID)
	}
	calID, err := s.calendarTarget(ctx)
	if err != nil {
		return false, err
	}

	added, err := s.calendar.AddAttendee(ctx, calID, *event.GoogleCalendarEventID, addr, in.Name)
	if err != nil {
		return false, calendarError(err, "add attendee")
	}

	if rsvp, err := s.rsvps.FindOne(ctx, map[string]interface{}{"event_id": event.ID, "email": addr}); err == nil && !rsvp.CalendarSynced {
		rsvp.CalendarSynced = true
		if err := s.db.Update(ctx, rsvp); err != nil {
			log.Warn().Err(err).Str("rsvp_id", rsvp.ID).Msg("⚠️  Failed to mark RSVP as synced")
		}
	}
	return added, nil
}

// RSVP 公开报名：保存报名、尽力加入 Google 日历、发送确认邮件
func (s *EventService) RSVP(ctx context.Context, eventID string, in RsvpInput) (*models.Rsvp, error) {
	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.IsPublished {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	if !event.StartTime.After(s.now()) {
		return nil, invalidf("event has already started")
	}

	if _, err := s.guard.Check(ctx, Guard{
		ActionType: "rsvp",
		Meta:       in.SubmissionMeta,
		Content:    []string{in.Name, in.Company},
		Payload:    in,
	}); err != nil {
		return nil, err
	}

	if event.Capacity != nil {
		taken, err := s.seatsTaken(ctx, event.ID)
		if err != nil {
			return nil, err
		}
		if taken+1+in.Guests > *event.Capacity {
			return nil, invalidf("event is full")
		}
	}

	rsvp := &models.Rsvp{
		EventID: event.ID,
		Name:    strings.TrimSpace(in.Name),
		Email:   in.Email,
		Company: strings.TrimSpace(in.Company),
		Guests:  in.Guests,
		Status:  models.RsvpConfirmed,
	}
	if err := s.rsvps.Create(ctx, rsvp); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%s is already registered: %w", rsvp.Email, ErrConflict)
		}
		return nil, err
	}

	log.Info().Str("event_id", event.ID).Str("rsvp_id", rsvp.ID).Msg("🎟️  RSVP confirmed")

	if event.GoogleCalendarEventID != nil {
		if _, err := s.AddAttendee(ctx, AttendeeInput{EventID: event.ID, Email: rsvp.Email, Name: rsvp.Name}); err != nil {
			log.Warn().Err(err).Str("event_id", event.ID).Msg("⚠️  Failed to add RSVP to Google Calendar")
		} else {
			rsvp.CalendarSynced = true
		}
	}

	_ = s.notifier.SendTo(ctx, rsvp.Email, fmt.Sprintf("You're registered: %s", event.Title),
		notify.TmplRsvpConfirmation, map[string]interface{}{"Event": event, "Rsvp": rsvp})
	return rsvp, nil
}

func (s *EventService) seatsTaken(ctx context.Context, eventID string) (int, error) {
	rsvps, err := s.rsvps.List(ctx, database.Where(map[string]interface{}{
		"event_id": eventID,
		"status":   string(models.RsvpConfirmed),
	}))
	if err != nil {
		return 0, err
	}
	taken := 0
	for _, r := range rsvps {
		taken += 1 + r.Guests
	}
	return taken, nil
}

// SendInvites 逐个发送活动邀请；单个失败不影响其他收件人，失败汇总返回
func (s *EventService) SendInvites(ctx context.Context, in InviteEmailsInput) (*EventInviteResult, error) {
	event, err := s.events.Get(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	recipients := notify.NormalizeAddresses(in.Emails)
	if len(recipients) == 0 {
		return nil, invalidf("at least one valid email is required")
	}

	data := map[string]interface{}{
		"Event":   event,
		"Message": strings.TrimSpace(in.Message),
		"URL":     s.eventURL(event),
	}
	subject := fmt.Sprintf("You're invited: %s", event.Title)

	result := &EventInviteResult{Failed: []string{}}
	var merr *multierror.Error
	for _, to := range recipients {
		if err := s.notifier.SendTo(ctx, to, subject, notify.TmplEventInvite, data); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", to, err))
			result.Failed = append(result.Failed, to)
			continue
		}
		result.Sent++
	}

	log.Info().Str("event_id", event.ID).Int("sent", result.Sent).Int("failed", len(result.Failed)).Msg("✉️  Event invites sent")
	return result, merr.ErrorOrNil()
}

func (s *EventService) eventURL(e *models.Event) string {
	if s.baseURL == "" || e.Slug == "" {
		return ""
	}
	return s.baseURL + "/events/" + e.Slug
}
