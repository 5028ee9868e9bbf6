package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// DefaultBaseURL Google Calendar v3 REST 地址
const DefaultBaseURL = "https://www.googleapis.com/calendar/v3"

// TokenProvider 提供 Bearer 访问令牌
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// RemoteEvent Google 日历中的一个事件
type RemoteEvent struct {
	ID          string
	Summary     string
	Description string
	Location    string
	Status      string
	HTMLLink    string
	Start       time.Time
	End         *time.Time
	AllDay      bool
	Attendees   []string
}

// Cancelled reports whether the remote event was cancelled.
func (e RemoteEvent) Cancelled() bool {
	return e.Status == "cancelled"
}

// EventInput 创建事件的参数
type EventInput struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Attendees   []string
}

// Client Google Calendar REST 客户端
type Client struct {
	tokens  TokenProvider
	baseURL string
	http    *http.Client
}

// NewClient baseURL 为空时使用 DefaultBaseURL
func NewClient(tokens TokenProvider, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = 20 * time.Second
	return &Client{tokens: tokens, baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

// CreateEvent 在日历中创建事件
func (c *Client) CreateEvent(ctx context.Context, calendarID string, in EventInput) (*RemoteEvent, error) {
	tz := in.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	end := in.End
	if end.IsZero() || !end.After(in.Start) {
		end = in.Start.Add(time.Hour)
	}
	body := map[string]interface{}{
		"summary":     in.Summary,
		"description": in.Description,
		"location":    in.Location,
		"start":       map[string]string{"dateTime": in.Start.UTC().Format(time.RFC3339), "timeZone": tz},
		"end":         map[string]string{"dateTime": end.UTC().Format(time.RFC3339), "timeZone": tz},
	}
	if len(in.Attendees) > 0 {
		attendees := make([]map[string]string, 0, len(in.Attendees))
		for _, a := range in.Attendees {
			attendees = append(attendees, map[string]string{"email": a})
		}
		body["attendees"] = attendees
	}

	raw, err := c.do(ctx, http.MethodPost, c.eventsPath(calendarID), nil, body)
	if err != nil {
		return nil, fmt.Errorf("create calendar event: %w", err)
	}
	ev := parseEvent(gjson.ParseBytes(raw))
	log.Info().Str("google_event_id", ev.ID).Str("summary", ev.Summary).Msg("📅 Calendar event created")
	return &ev, nil
}

// ListEvents 列出 timeMin 之后的所有事件（展开重复事件，自动翻页）
func (c *Client) ListEvents(ctx context.Context, calendarID string, timeMin time.Time) ([]RemoteEvent, error) {
	var events []RemoteEvent
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("singleEvents", "true")
		q.Set("orderBy", "startTime")
		q.Set("showDeleted", "true")
		q.Set("maxResults", "250")
		q.Set("timeMin", timeMin.UTC().Format(time.RFC3339))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		raw, err := c.do(ctx, http.MethodGet, c.eventsPath(calendarID), q, nil)
		if err != nil {
			return nil, fmt.Errorf("list calendar events: %w", err)
		}
		page := gjson.ParseBytes(raw)
		page.Get("items").ForEach(func(_, item gjson.Result) bool {
			events = append(events, parseEvent(item))
			return true
		})

		pageToken = page.Get("nextPageToken").String()
		if pageToken == "" {
			return events, nil
		}
	}
}

// AddAttendee 把 email 加入事件参与人并通知；已在列表中时返回 false
func (c *Client) AddAttendee(ctx context.Context, calendarID, eventID, email, name string) (bool, error) {
	path := c.eventsPath(calendarID) + "/" + url.PathEscape(eventID)
	raw, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return false, fmt.Errorf("get calendar event: %w", err)
	}

	var attendees []map[string]interface{}
	exists := false
	gjson.GetBytes(raw, "attendees").ForEach(func(_, a gjson.Result) bool {
		if strings.EqualFold(a.Get("email").String(), email) {
			exists = true
		}
		if m, ok := a.Value().(map[string]interface{}); ok {
			attendees = append(attendees, m)
		}
		return true
	})
	if exists {
		return false, nil
	}

	attendee := map[string]interface{}{"email": email}
	if name != "" {
		attendee["displayName"] = name
	}
	attendees = append(attendees, attendee)

	q := url.Values{}
	q.Set("sendUpdates", "all")
	if _, err := c.do(ctx, http.MethodPatch, path, q, map[string]interface{}{"attendees": attendees}); err != nil {
		return false, fmt.Errorf("patch calendar event attendees: %w", err)
	}
	return true, nil
}

func (c *Client) eventsPath(calendarID string) string {
	if calendarID == "" {
		calendarID = "primary"
	}
	return "/calendars/" + url.PathEscape(calendarID) + "/events"
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, fmt.Errorf("google calendar %s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	return raw, nil
}

func parseEvent(item gjson.Result) RemoteEvent {
	ev := RemoteEvent{
		ID:          item.Get("id").String(),
		Summary:     item.Get("summary").String(),
		Description: item.Get("description").String(),
		Location:    item.Get("location").String(),
		Status:      item.Get("status").String(),
		HTMLLink:    item.Get("htmlLink").String(),
	}
	if start, allDay, ok := parseEventTime(item.Get("start")); ok {
		ev.Start = start
		ev.AllDay = allDay
	}
	if end, _, ok := parseEventTime(item.Get("end")); ok {
		ev.End = &end
	}
	item.Get("attendees.#.email").ForEach(func(_, e gjson.Result) bool {
		ev.Attendees = append(ev.Attendees, e.String())
		return true
	})
	return ev
}

// parseEventTime 解析 {dateTime} 或全天事件的 {date}
func parseEventTime(v gjson.Result) (time.Time, bool, bool) {
	if dt := v.Get("dateTime").String(); dt != "" {
		t, err := time.Parse(time.RFC3339, dt)
		if err == nil {
			return t.UTC(), false, true
		}
	}
	if d := v.Get("date").String(); d != "" {
		t, err := time.Parse("2006-01-02", d)
		if err == nil {
			return t.UTC(), true, true
		}
	}
	return time.Time{}, false, false
}
