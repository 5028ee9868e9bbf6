package models

import "time"

// PostStatus 博客文章状态
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostPublished PostStatus = "published"
)

// BlogPost 博客文章，slug 唯一
type BlogPost struct {
	Base
	Title       string     `json:"title" db:"title"`
	Slug        string     `json:"slug" db:"slug"`
	Excerpt     string     `json:"excerpt" db:"excerpt"`
	Content     string     `json:"content" db:"content"`
	CoverImage  string     `json:"cover_image" db:"cover_image"`
	Author      string     `json:"author" db:"author"`
	Tags        StringList `json:"tags" db:"tags"`
	Status      PostStatus `json:"status" db:"status"`
	PublishedAt *time.Time `json:"published_at" db:"published_at"`
}

func (*BlogPost) TableName() string { return "blog_posts" }

// Testimonial 首页展示的会员评价
type Testimonial struct {
	Base
	AuthorName   string `json:"author_name" db:"author_name"`
	AuthorTitle  string `json:"author_title" db:"author_title"`
	Company      string `json:"company" db:"company"`
	Quote        string `json:"quote" db:"quote"`
	AvatarURL    string `json:"avatar_url" db:"avatar_url"`
	Rating       int    `json:"rating" db:"rating"`
	IsFeatured   bool   `json:"is_featured" db:"is_featured"`
	DisplayOrder int    `json:"display_order" db:"display_order"`
}

func (*Testimonial) TableName() string { return "testimonials" }

type SuccessStory struct {
	Base
	Title       string `json:"title" db:"title"`
	Slug        string `json:"slug" db:"slug"`
	Summary     string `json:"summary" db:"summary"`
	Content     string `json:"content" db:"content"`
	Company     string `json:"company" db:"company"`
	ImageURL    string `json:"image_url" db:"image_url"`
	IsPublished bool   `json:"is_published" db:"is_published"`
}

func (*SuccessStory) TableName() string { return "success_stories" }

// SeoSettings 页面级 SEO 元数据，page_path 唯一
type SeoSettings struct {
	Base
	PagePath     string `json:"page_path" db:"page_path"`
	Title        string `json:"title" db:"title"`
	Description  string `json:"description" db:"description"`
	Keywords     string `json:"keywords" db:"keywords"`
	OgImage      string `json:"og_image" db:"og_image"`
	CanonicalURL string `json:"canonical_url" db:"canonical_url"`
	NoIndex      bool   `json:"no_index" db:"no_index"`
}

func (*SeoSettings) TableName() string { return "seo_settings" }

// MediaItem 媒体库记录（文件本身在对象存储中）
type MediaItem struct {
	Base
	FileName    string `json:"file_name" db:"file_name"`
	URL         string `json:"url" db:"url"`
	StoragePath string `json:"storage_path" db:"storage_path"`
	MimeType    string `json:"mime_type" db:"mime_type"`
	SizeBytes   int64  `json:"size_bytes" db:"size_bytes"`
	AltText     string `json:"alt_text" db:"alt_text"`
	UploadedBy  string `json:"uploaded_by" db:"uploaded_by"`
}

func (*MediaItem) TableName() string { return "media_items" }
