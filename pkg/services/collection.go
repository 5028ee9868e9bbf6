package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/models"
	"coworking-alliance-backend/pkg/utils"

	"github.com/google/uuid"
)

// recordPtr 约束 *T 实现 models.Record
type recordPtr[T any] interface {
	*T
	models.Record
}

// slugField 指向需要自动生成 slug 的字段
type slugField[T any] struct {
	slug  func(*T) *string
	title func(*T) string
}

// Collection 一张内容表的通用 CRUD
type Collection[T any, PT recordPtr[T]] struct {
	db  database.DatabaseInterface
	now func() time.Time
	// prepare 在写入前校验并补全字段；existing 为 nil 表示创建
	prepare func(rec PT, existing PT, now time.Time) error
	slug    *slugField[T]
}

func newCollection[T any, PT recordPtr[T]](db database.DatabaseInterface, now func() time.Time) *Collection[T, PT] {
	return &Collection[T, PT]{db: db, now: now}
}

func (c *Collection[T, PT]) table() string {
	return PT(new(T)).TableName()
}

// List 按条件列出记录
func (c *Collection[T, PT]) List(ctx context.Context, f database.Filter) ([]T, error) {
	rows := []T{}
	if err := c.db.Find(ctx, &rows, f); err != nil {
		return nil, storeError(err, "list %s", c.table())
	}
	return rows, nil
}

// Get 按 ID 读取
func (c *Collection[T, PT]) Get(ctx context.Context, id string) (PT, error) {
	rec := PT(new(T))
	rec.SetID(id)
	if err := c.db.Get(ctx, rec); err != nil {
		return nil, storeError(err, "%s %s", c.table(), id)
	}
	return rec, nil
}

// FindOne 返回第一条满足等值条件的记录
func (c *Collection[T, PT]) FindOne(ctx context.Context, eq map[string]interface{}) (PT, error) {
	rec, err := database.First[T, PT](ctx, c.db, database.Where(eq))
	if err != nil {
		return nil, storeError(err, "%s %v", c.table(), eq)
	}
	return PT(rec), nil
}

// Create 校验并写入；自动生成的 slug 冲突时追加随机后缀重试
func (c *Collection[T, PT]) Create(ctx context.Context, rec PT) error {
	rec.SetID("")
	if c.prepare != nil {
		if err := c.prepare(rec, nil, c.now()); err != nil {
			return err
		}
	}

	derived := false
	if c.slug != nil {
		if s := c.slug.slug((*T)(rec)); *s == "" {
			*s = utils.Slugify(c.slug.title((*T)(rec)))
			derived = true
		}
	}

	for attempt := 0; ; attempt++ {
		err := c.db.Insert(ctx, rec)
		if err == nil {
			return nil
		}
		if !derived || attempt >= 3 || !errors.Is(err, database.ErrConflict) {
			return storeError(err, "create %s", c.table())
		}
		s := c.slug.slug((*T)(rec))
		*s = fmt.Sprintf("%s-%s", utils.Slugify(c.slug.title((*T)(rec))), uuid.NewString()[:6])
		rec.SetID("")
	}
}

// Update 读取现有记录，apply 修改后写回；id 和 created_at 不可修改
func (c *Collection[T, PT]) Update(ctx context.Context, id string, apply func(PT) error) (PT, error) {
	rec, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *rec
	existing := PT(&before)

	if err := apply(rec); err != nil {
		return nil, err
	}
	rec.SetID(id)
	if c.prepare != nil {
		if err := c.prepare(rec, existing, c.now()); err != nil {
			return nil, err
		}
	}
	if c.slug != nil {
		if s := c.slug.slug((*T)(rec)); *s == "" {
			*s = *c.slug.slug((*T)(existing))
		}
	}

	if err := c.db.Update(ctx, rec); err != nil {
		return nil, storeError(err, "update %s %s", c.table(), id)
	}
	return rec, nil
}

// Delete 按 ID 删除
func (c *Collection[T, PT]) Delete(ctx context.Context, id string) error {
	rec := PT(new(T))
	rec.SetID(id)
	if err := c.db.Delete(ctx, rec); err != nil {
		return storeError(err, "delete %s %s", c.table(), id)
	}
	return nil
}
