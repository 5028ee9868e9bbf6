package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/models"
	"coworking-alliance-backend/pkg/notify"
)

// ContentService 管理后台各内容表
type ContentService struct {
	db  database.DatabaseInterface
	now func() time.Time

	Spaces         *Collection[models.Space, *models.Space]
	Events         *Collection[models.Event, *models.Event]
	BlogPosts      *Collection[models.BlogPost, *models.BlogPost]
	Testimonials   *Collection[models.Testimonial, *models.Testimonial]
	SuccessStories *Collection[models.SuccessStory, *models.SuccessStory]
	SeoSettings    *Collection[models.SeoSettings, *models.SeoSettings]
	MediaItems     *Collection[models.MediaItem, *models.MediaItem]
	Leads          *Collection[models.Lead, *models.Lead]
	Rsvps          *Collection[models.Rsvp, *models.Rsvp]
	Applications   *Collection[models.PendingApplication, *models.PendingApplication]
	Profiles       *Collection[models.Profile, *models.Profile]
}

func newContentService(db database.DatabaseInterface, now func() time.Time) *ContentService {
	c := &ContentService{db: db, now: now}

	c.Spaces = newCollection[models.Space](db, now)
	c.Spaces.prepare = prepareSpace
	c.Spaces.slug = &slugField[models.Space]{
		slug:  func(s *models.Space) *string { return &s.Slug },
		title: func(s *models.Space) string { return s.Name },
	}

	c.Events = newCollection[models.Event](db, now)
	c.Events.prepare = prepareEvent
	c.Events.slug = &slugField[models.Event]{
		slug:  func(e *models.Event) *string { return &e.Slug },
		title: func(e *models.Event) string { return e.Title },
	}

	c.BlogPosts = newCollection[models.BlogPost](db, now)
	c.BlogPosts.prepare = prepareBlogPost
	c.BlogPosts.slug = &slugField[models.BlogPost]{
		slug:  func(p *models.BlogPost) *string { return &p.Slug },
		title: func(p *models.BlogPost) string { return p.Title },
	}

	c.Testimonials = newCollection[models.Testimonial](db, now)
	c.Testimonials.prepare = prepareTestimonial

	c.SuccessStories = newCollection[models.SuccessStory](db, now)
	c.SuccessStories.prepare = func(s *models.SuccessStory, _ *models.SuccessStory, _ time.Time) error {
		if strings.TrimSpace(s.Title) == "" {
			return invalidf("title is required")
		}
		return nil
	}
	c.SuccessStories.slug = &slugField[models.SuccessStory]{
		slug:  func(s *models.SuccessStory) *string { return &s.Slug },
		title: func(s *models.SuccessStory) string { return s.Title },
	}

	c.SeoSettings = newCollection[models.SeoSettings](db, now)
	c.SeoSettings.prepare = prepareSeo

	c.MediaItems = newCollection[models.MediaItem](db, now)
	c.MediaItems.prepare = func(m *models.MediaItem, _ *models.MediaItem, _ time.Time) error {
		if strings.TrimSpace(m.FileName) == "" || strings.TrimSpace(m.URL) == "" {
			return invalidf("file_name and url are required")
		}
		if m.SizeBytes < 0 {
			return invalidf("size_bytes must not be negative")
		}
		return nil
	}

	c.Leads = newCollection[models.Lead](db, now)
	c.Leads.prepare = prepareLead

	c.Rsvps = newCollection[models.Rsvp](db, now)
	c.Rsvps.prepare = prepareRsvp

	c.Applications = newCollection[models.PendingApplication](db, now)
	c.Applications.prepare = prepareApplication

	c.Profiles = newCollection[models.Profile](db, now)
	c.Profiles.prepare = prepareProfile

	return c
}

// ============================================================================
// 写入前校验
// ============================================================================

func requireEmail(field, raw string) (string, error) {
	addr, ok := notify.NormalizeAddress(raw)
	if !ok {
		return "", invalidf("%s must be a valid email address", field)
	}
	return addr, nil
}

func prepareSpace(s *models.Space, existing *models.Space, now time.Time) error {
	if strings.TrimSpace(s.Name) == "" {
		return invalidf("name is required")
	}
	if s.Status == "" {
		s.Status = models.SpacePending
	}
	if !s.Status.Valid() {
		return invalidf("status must be pending, approved or rejected")
	}
	if s.Status == models.SpaceApproved && s.ApprovedAt == nil {
		t := now.UTC()
		s.ApprovedAt = &t
	}
	if s.Latitude != nil && (*s.Latitude < -90 || *s.Latitude > 90) {
		return invalidf("latitude out of range")
	}
	if s.Longitude != nil && (*s.Longitude < -180 || *s.Longitude > 180) {
		return invalidf("longitude out of range")
	}
	return nil
}

func prepareEvent(e *models.Event, _ *models.Event, _ time.Time) error {
	if strings.TrimSpace(e.Title) == "" {
		return invalidf("title is required")
	}
	if e.StartTime.IsZero() {
		return invalidf("start_time is required")
	}
	if e.EndTime != nil && e.EndTime.Before(e.StartTime) {
		return invalidf("end_time must be after start_time")
	}
	if e.Capacity != nil && *e.Capacity < 0 {
		return invalidf("capacity must not be negative")
	}
	if e.GoogleCalendarEventID != nil && *e.GoogleCalendarEventID == "" {
		e.GoogleCalendarEventID = nil
	}
	return nil
}

func prepareBlogPost(p *models.BlogPost, existing *models.BlogPost, now time.Time) error {
	if strings.TrimSpace(p.Title) == "" {
		return invalidf("title is required")
	}
	if p.Status == "" {
		p.Status = models.PostDraft
	}
	switch p.Status {
	case models.PostDraft:
	case models.PostPublished:
		if p.PublishedAt == nil {
			t := now.UTC()
			p.PublishedAt = &t
		}
	default:
		return invalidf("status must be draft or published")
	}
	return nil
}

func prepareTestimonial(t *models.Testimonial, _ *models.Testimonial, _ time.Time) error {
	if strings.TrimSpace(t.AuthorName) == "" || strings.TrimSpace(t.Quote) == "" {
		return invalidf("author_name and quote are required")
	}
	if t.Rating == 0 {
		t.Rating = 5
	}
	if t.Rating < 1 || t.Rating > 5 {
		return invalidf("rating must be between 1 and 5")
	}
	return nil
}

// NormalizePagePath 统一为以 / 开头、无结尾 / 的路径
func NormalizePagePath(p string) string {
	p = strings.TrimSpace(p)
	if u, err := url.Parse(p); err == nil && u.Path != "" {
		p = u.Path
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return strings.ToLower(p)
}

func prepareSeo(s *models.SeoSettings, _ *models.SeoSettings, _ time.Time) error {
	if strings.TrimSpace(s.PagePath) == "" {
		return invalidf("page_path is required")
	}
	s.PagePath = NormalizePagePath(s.PagePath)
	return nil
}

func prepareLead(l *models.Lead, _ *models.Lead, _ time.Time) error {
	if strings.TrimSpace(l.Name) == "" {
		return invalidf("name is required")
	}
	email, err := requireEmail("email", l.Email)
	if err != nil {
		return err
	}
	l.Email = email
	if l.Source == "" {
		l.Source = models.LeadContact
	}
	if !l.Source.Valid() {
		return invalidf("unknown lead source %q", l.Source)
	}
	if l.Status == "" {
		l.Status = models.LeadNew
	}
	switch l.Status {
	case models.LeadNew, models.LeadContacted, models.LeadClosed:
	default:
		return invalidf("status must be new, contacted or closed")
	}
	return nil
}

func prepareRsvp(r *models.Rsvp, _ *models.Rsvp, _ time.Time) error {
	if strings.TrimSpace(r.EventID) == "" {
		return invalidf("event_id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return invalidf("name is required")
	}
	email, err := requireEmail("email", r.Email)
	if err != nil {
		return err
	}
	r.Email = email
	if r.Guests < 0 {
		return invalidf("guests must not be negative")
	}
	if r.Status == "" {
		r.Status = models.RsvpConfirmed
	}
	if r.Status != models.RsvpConfirmed && r.Status != models.RsvpCancelled {
		return invalidf("status must be confirmed or cancelled")
	}
	return nil
}

func prepareApplication(a *models.PendingApplication, existing *models.PendingApplication, _ time.Time) error {
	if strings.TrimSpace(a.Name) == "" {
		return invalidf("name is required")
	}
	email, err := requireEmail("email", a.Email)
	if err != nil {
		return err
	}
	a.Email = email
	if existing == nil {
		a.Status = models.ApplicationPending
		return nil
	}
	// 状态只能通过审核流程修改
	a.Status = existing.Status
	a.ReviewedAt = existing.ReviewedAt
	a.ReviewedBy = existing.ReviewedBy
	return nil
}

func prepareProfile(p *models.Profile, _ *models.Profile, _ time.Time) error {
	email, err := requireEmail("email", p.Email)
	if err != nil {
		return err
	}
	p.Email = email
	if p.Role == "" {
		p.Role = models.RoleMember
	}
	if _, ok := models.ParseRole(string(p.Role)); !ok {
		return invalidf("unknown role %q", p.Role)
	}
	return nil
}

// ============================================================================
// 公开页面查询
// ============================================================================

// PublicSpaces 目录中已审核通过的空间，推荐的排在前面
func (c *ContentService) PublicSpaces(ctx context.Context, city string, limit, offset int) ([]models.Space, error) {
	eq := map[string]interface{}{"status": string(models.SpaceApproved)}
	if city != "" {
		eq["city"] = city
	}
	return c.Spaces.List(ctx, database.Filter{
		Eq:      eq,
		OrderBy: "featured",
		Desc:    true,
		ThenBy:  "name",
		Limit:   limit,
		Offset:  offset,
	})
}

// PublicSpace 按 ID 或 slug 读取已审核的空间
func (c *ContentService) PublicSpace(ctx context.Context, idOrSlug string) (*models.Space, error) {
	space, err := c.Spaces.FindOne(ctx, map[string]interface{}{"slug": idOrSlug, "status": string(models.SpaceApproved)})
	if err == nil || !errors.Is(err, ErrNotFound) {
		return space, err
	}
	space, err = c.Spaces.Get(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if space.Status != models.SpaceApproved {
		return nil, ErrNotFound
	}
	return space, nil
}

// UpcomingEvents 已发布且尚未开始的活动
func (c *ContentService) UpcomingEvents(ctx context.Context, limit int) ([]models.Event, error) {
	return c.Events.List(ctx, database.Filter{
		Eq:      map[string]interface{}{"is_published": true},
		Gte:     map[string]interface{}{"start_time": c.now().UTC()},
		OrderBy: "start_time",
		Limit:   limit,
	})
}

// PublicEvent 已发布的活动
func (c *ContentService) PublicEvent(ctx context.Context, idOrSlug string) (*models.Event, error) {
	ev, err := c.Events.FindOne(ctx, map[string]interface{}{"slug": idOrSlug, "is_published": true})
	if err == nil || !errors.Is(err, ErrNotFound) {
		return ev, err
	}
	ev, err = c.Events.Get(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if !ev.IsPublished {
		return nil, ErrNotFound
	}
	return ev, nil
}

// PublishedPosts 已发布文章，新的在前
func (c *ContentService) PublishedPosts(ctx context.Context, limit, offset int) ([]models.BlogPost, error) {
	return c.BlogPosts.List(ctx, database.Filter{
		Eq:      map[string]interface{}{"status": string(models.PostPublished)},
		OrderBy: "published_at",
		Desc:    true,
		Limit:   limit,
		Offset:  offset,
	})
}

// PublishedPost 按 slug 读取已发布文章
func (c *ContentService) PublishedPost(ctx context.Context, slug string) (*models.BlogPost, error) {
	return c.BlogPosts.FindOne(ctx, map[string]interface{}{"slug": slug, "status": string(models.PostPublished)})
}

// FeaturedTestimonials 首页评价，按 display_order
func (c *ContentService) FeaturedTestimonials(ctx context.Context, featuredOnly bool) ([]models.Testimonial, error) {
	f := database.Filter{OrderBy: "display_order"}
	if featuredOnly {
		f.Eq = map[string]interface{}{"is_featured": true}
	}
	return c.Testimonials.List(ctx, f)
}

// PublishedStories 已发布的成功案例
func (c *ContentService) PublishedStories(ctx context.Context) ([]models.SuccessStory, error) {
	return c.SuccessStories.List(ctx, database.Filter{
		Eq:      map[string]interface{}{"is_published": true},
		OrderBy: "created_at",
		Desc:    true,
	})
}

// PublishedStory 按 slug 读取已发布的成功案例
func (c *ContentService) PublishedStory(ctx context.Context, slug string) (*models.SuccessStory, error) {
	return c.SuccessStories.FindOne(ctx, map[string]interface{}{"slug": slug, "is_published": true})
}

// SeoForPath 页面 SEO 元数据
func (c *ContentService) SeoForPath(ctx context.Context, path string) (*models.SeoSettings, error) {
	return c.SeoSettings.FindOne(ctx, map[string]interface{}{"page_path": NormalizePagePath(path)})
}
