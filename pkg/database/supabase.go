package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"time"

	"coworking-alliance-backend/pkg/models"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
)

// SupabaseDatabase Supabase数据库实现（PostgREST over HTTPS，使用 service key）
type SupabaseDatabase struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSupabaseDatabase 创建Supabase数据库实例
func NewSupabaseDatabase(url, key string) *SupabaseDatabase {
	// 确保URL格式正确
	if !strings.HasPrefix(url, "http") {
		url = "https://" + url
	}

	client := cleanhttp.DefaultPooledClient()
	client.Timeout = 30 * time.Second

	return &SupabaseDatabase{
		baseURL:    strings.TrimRight(url, "/"),
		apiKey:     key,
		httpClient: client,
	}
}

// makeRequest 发送HTTP请求到Supabase
func (db *SupabaseDatabase) makeRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	return db.makeRequestWithHeaders(ctx, method, endpoint, body, nil)
}

// makeRequestWithHeaders 发送HTTP请求到Supabase（支持自定义头）
func (db *SupabaseDatabase) makeRequestWithHeaders(ctx context.Context, method, endpoint string, body interface{}, customHeaders map[string]string) ([]byte, error) {
	var reqBody io.Reader

	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	url := db.baseURL + "/rest/v1" + endpoint
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// 设置默认请求头
	req.Header.Set("apikey", db.apiKey)
	req.Header.Set("Authorization", "Bearer "+db.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	// 设置自定义请求头
	for key, value := range customHeaders {
		req.Header.Set(key, value)
	}

	resp, err := db.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusConflict {
		return nil, fmt.Errorf("%w: %s", ErrConflict, string(respBody))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// Insert 创建记录
func (db *SupabaseDatabase) Insert(ctx context.Context, rec models.Record) error {
	if rec.GetID() == "" {
		rec.SetID(uuid.NewString())
	}
	rec.Touch(time.Now())

	data, err := db.makeRequest(ctx, http.MethodPost, "/"+rec.TableName(), rec)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", rec.TableName(), err)
	}
	return decodeFirst(data, rec)
}

// Update 更新记录
func (db *SupabaseDatabase) Update(ctx context.Context, rec models.Record) error {
	if rec.GetID() == "" {
		return fmt.Errorf("update %s: missing id", rec.TableName())
	}
	rec.Touch(time.Now())

	row, err := jsonRow(rec)
	if err != nil {
		return err
	}
	for col := range immutableColumns {
		delete(row, col)
	}

	endpoint := "/" + rec.TableName() + "?id=eq." + url.QueryEscape(rec.GetID())
	data, err := db.makeRequest(ctx, http.MethodPatch, endpoint, row)
	if err != nil {
		return fmt.Errorf("update %s: %w", rec.TableName(), err)
	}
	return decodeFirst(data, rec)
}

// Delete 删除记录
func (db *SupabaseDatabase) Delete(ctx context.Context, rec models.Record) error {
	endpoint := "/" + rec.TableName() + "?id=eq." + url.QueryEscape(rec.GetID())
	data, err := db.makeRequest(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", rec.TableName(), err)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("decode delete response: %w", err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

// Get 按 ID 读取
func (db *SupabaseDatabase) Get(ctx context.Context, rec models.Record) error {
	endpoint := "/" + rec.TableName() + "?id=eq." + url.QueryEscape(rec.GetID()) + "&select=*&limit=1"
	data, err := db.makeRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("get %s: %w", rec.TableName(), err)
	}
	return decodeFirst(data, rec)
}

// Find 条件查询
func (db *SupabaseDatabase) Find(ctx context.Context, dest interface{}, f Filter) error {
	table := f.Table
	if table == "" {
		table = tableOf(dest)
	}
	if !columnPattern.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}

	query, err := postgrestQuery(f)
	if err != nil {
		return err
	}
	data, err := db.makeRequest(ctx, http.MethodGet, "/"+table+"?"+query, nil)
	if err != nil {
		return fmt.Errorf("select from %s: %w", table, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode %s rows: %w", table, err)
	}
	return nil
}

// UpsertRateLimit REST 接口没有行锁，这里只能做普通的读-改-写
func (db *SupabaseDatabase) UpsertRateLimit(ctx context.Context, identifier, actionType string, apply func(*models.RateLimit) error) (*models.RateLimit, error) {
	seed := &models.RateLimit{Identifier: identifier, ActionType: actionType}
	seed.SetID(uuid.NewString())
	seed.Touch(time.Now())
	_, err := db.makeRequestWithHeaders(ctx, http.MethodPost, "/rate_limits?on_conflict=identifier,action_type", seed,
		map[string]string{"Prefer": "resolution=ignore-duplicates,return=minimal"})
	if err != nil {
		return nil, fmt.Errorf("seed rate limit row: %w", err)
	}

	var rows []models.RateLimit
	if err := db.Find(ctx, &rows, Where(map[string]interface{}{"identifier": identifier, "action_type": actionType})); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("rate limit row for %s/%s: %w", identifier, actionType, ErrNotFound)
	}
	rl := rows[0]
	if err := apply(&rl); err != nil {
		return nil, err
	}
	if err := db.Update(ctx, &rl); err != nil {
		return nil, err
	}
	return &rl, nil
}

// HealthCheck 健康检查
func (db *SupabaseDatabase) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := db.makeRequest(ctx, http.MethodGet, "/profiles?select=id&limit=1", nil)
	return err
}

// Close 关闭连接（HTTP 客户端无需关闭）
func (db *SupabaseDatabase) Close() error {
	db.httpClient.CloseIdleConnections()
	return nil
}

// postgrestQuery 把 Filter 渲染成 PostgREST 查询串：col=eq.value、order=col.desc、limit=n
func postgrestQuery(f Filter) (string, error) {
	parts := []string{"select=*"}
	add := func(op string, m map[string]interface{}) error {
		keys := make([]string, 0, len(m))
		for k := range m {
			if !columnPattern.MatchString(k) {
				return fmt.Errorf("invalid column %q", k)
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := m[k]
			if v == nil && op == "eq" {
				parts = append(parts, k+"=is.null")
				continue
			}
			parts = append(parts, k+"="+op+"."+url.QueryEscape(formatValue(v)))
		}
		return nil
	}
	if err := add("eq", f.Eq); err != nil {
		return "", err
	}
	if err := add("gte", f.Gte); err != nil {
		return "", err
	}
	terms, err := f.orderTerms()
	if err != nil {
		return "", err
	}
	if len(terms) > 0 {
		order := make([]string, 0, len(terms))
		for _, t := range terms {
			dir := "asc"
			if t.desc {
				dir = "desc"
			}
			order = append(order, t.column+"."+dir)
		}
		parts = append(parts, "order="+strings.Join(order, ","))
	}
	if f.Limit > 0 {
		parts = append(parts, fmt.Sprintf("limit=%d", f.Limit))
	}
	if f.Offset > 0 {
		parts = append(parts, fmt.Sprintf("offset=%d", f.Offset))
	}
	return strings.Join(parts, "&"), nil
}

// formatValue 过滤值的文本形式，时间统一为 UTC RFC3339
func formatValue(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return "null"
		}
		return t.UTC().Format(time.RFC3339Nano)
	case string:
		return t
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String()
	}
	return fmt.Sprint(v)
}

// decodeFirst 把 return=representation 返回的第一行写回 rec
func decodeFirst(data []byte, rec models.Record) error {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return json.Unmarshal(rows[0], rec)
}
