package database

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"coworking-alliance-backend/pkg/models"

	"github.com/google/uuid"
)

// uniqueConstraints 与 SQL schema 中的唯一约束一一对应，NULL 不参与比较
var uniqueConstraints = map[string][][]string{
	"profiles":          {{"email"}},
	"admin_credentials": {{"profile_id"}},
	"spaces":            {{"slug"}},
	"events":            {{"google_calendar_event_id"}},
	"rsvps":             {{"event_id", "email"}},
	"blog_posts":        {{"slug"}},
	"success_stories":   {{"slug"}},
	"seo_settings":      {{"page_path"}},
	"rate_limits":       {{"identifier", "action_type"}},
}

type row = map[string]interface{}

type memTable struct {
	rows  map[string]row
	order []string
}

// MemoryDatabase 进程内数据库，行以 JSON 形式保存；测试和 DATABASE_DRIVER=memory 使用
type MemoryDatabase struct {
	mu     sync.RWMutex
	tables map[string]*memTable
}

// NewMemoryDatabase 创建内存数据库
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{tables: make(map[string]*memTable)}
}

func (m *MemoryDatabase) table(name string) *memTable {
	t, ok := m.tables[name]
	if !ok {
		t = &memTable{rows: make(map[string]row)}
		m.tables[name] = t
	}
	return t
}

// Insert 创建记录
func (m *MemoryDatabase) Insert(ctx context.Context, rec models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(rec)
}

func (m *MemoryDatabase) insertLocked(rec models.Record) error {
	if rec.GetID() == "" {
		rec.SetID(uuid.NewString())
	}
	rec.Touch(time.Now())

	r, err := jsonRow(rec)
	if err != nil {
		return err
	}
	t := m.table(rec.TableName())
	if _, exists := t.rows[rec.GetID()]; exists {
		return fmt.Errorf("%w: duplicate id %s", ErrConflict, rec.GetID())
	}
	if err := checkUnique(rec.TableName(), t, r, ""); err != nil {
		return err
	}
	t.rows[rec.GetID()] = r
	t.order = append(t.order, rec.GetID())
	return nil
}

// Update 更新记录
func (m *MemoryDatabase) Update(ctx context.Context, rec models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(rec)
}

func (m *MemoryDatabase) updateLocked(rec models.Record) error {
	t := m.table(rec.TableName())
	existing, ok := t.rows[rec.GetID()]
	if !ok {
		return ErrNotFound
	}
	rec.Touch(time.Now())

	r, err := jsonRow(rec)
	if err != nil {
		return err
	}
	r["created_at"] = existing["created_at"]
	if err := checkUnique(rec.TableName(), t, r, rec.GetID()); err != nil {
		return err
	}
	t.rows[rec.GetID()] = r
	return decodeRow(r, rec)
}

// Delete 删除记录
func (m *MemoryDatabase) Delete(ctx context.Context, rec models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(rec.TableName())
	if _, ok := t.rows[rec.GetID()]; !ok {
		return ErrNotFound
	}
	delete(t.rows, rec.GetID())
	for i, id := range t.order {
		if id == rec.GetID() {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get 按 ID 读取
func (m *MemoryDatabase) Get(ctx context.Context, rec models.Record) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.table(rec.TableName()).rows[rec.GetID()]
	if !ok {
		return ErrNotFound
	}
	return decodeRow(r, rec)
}

// Find 条件查询
func (m *MemoryDatabase) Find(ctx context.Context, dest interface{}, f Filter) error {
	table := f.Table
	if table == "" {
		table = tableOf(dest)
	}

	m.mu.RLock()
	matched, err := m.findLocked(table, f)
	m.mu.RUnlock()
	if err != nil {
		return err
	}

	data, err := json.Marshal(matched)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (m *MemoryDatabase) findLocked(table string, f Filter) ([]row, error) {
	eq, err := normalizeFilter(f.Eq)
	if err != nil {
		return nil, err
	}
	gte, err := normalizeFilter(f.Gte)
	if err != nil {
		return nil, err
	}

	t := m.table(table)
	matched := make([]row, 0)
	for _, id := range t.order {
		r := t.rows[id]
		if matches(r, eq, gte) {
			matched = append(matched, r)
		}
	}

	terms, err := f.orderTerms()
	if err != nil {
		return nil, err
	}
	if len(terms) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, t := range terms {
				c := compareValues(matched[i][t.column], matched[j][t.column])
				if c == 0 {
					continue
				}
				if t.desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			matched = matched[:0]
		} else {
			matched = matched[f.Offset:]
		}
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

// UpsertRateLimit 整个读-改-写在同一把写锁内完成
func (m *MemoryDatabase) UpsertRateLimit(ctx context.Context, identifier, actionType string, apply func(*models.RateLimit) error) (*models.RateLimit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rl models.RateLimit
	rows, err := m.findLocked(rl.TableName(), Where(map[string]interface{}{"identifier": identifier, "action_type": actionType}))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		rl = models.RateLimit{Identifier: identifier, ActionType: actionType}
		if err := m.insertLocked(&rl); err != nil {
			return nil, err
		}
	} else if err := decodeRow(rows[0], &rl); err != nil {
		return nil, err
	}

	if err := apply(&rl); err != nil {
		return nil, err
	}
	if err := m.updateLocked(&rl); err != nil {
		return nil, err
	}
	return &rl, nil
}

// HealthCheck 健康检查
func (m *MemoryDatabase) HealthCheck() error { return nil }

// Close 关闭连接
func (m *MemoryDatabase) Close() error { return nil }

// jsonRow 记录转为以列名为键的 map（json 标签与列名一致）
func jsonRow(rec interface{}) (row, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	r := row{}
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return r, nil
}

func decodeRow(r row, rec models.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, rec)
}

func normalizeFilter(m map[string]interface{}) (row, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return jsonRow(m)
}

func matches(r, eq, gte row) bool {
	for k, want := range eq {
		if !valuesEqual(r[k], want) {
			return false
		}
	}
	for k, min := range gte {
		if r[k] == nil || compareValues(r[k], min) < 0 {
			return false
		}
	}
	return true
}

func checkUnique(table string, t *memTable, r row, selfID string) error {
	for _, cols := range uniqueConstraints[table] {
		for id, other := range t.rows {
			if id == selfID {
				continue
			}
			same := true
			for _, c := range cols {
				if r[c] == nil || !valuesEqual(r[c], other[c]) {
					same = false
					break
				}
			}
			if same {
				return fmt.Errorf("%w: %s(%s)", ErrConflict, table, strings.Join(cols, ", "))
			}
		}
	}
	return nil
}

func valuesEqual(a, b interface{}) bool {
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Equal(tb)
		}
	}
	return reflect.DeepEqual(a, b)
}

// compareValues 比较 JSON 解码后的值：nil 最小，时间按时间比，数字按数值比
func compareValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asTime(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || len(s) < len("2006-01-02T15:04:05Z") {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
