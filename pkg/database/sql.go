package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"coworking-alliance-backend/pkg/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"
)

var columnPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// SQLDatabase PostgreSQL 与 SQLite 共用的实现，只有占位符和行锁语法不同
type SQLDatabase struct {
	db      *sqlx.DB
	qb      sq.StatementBuilderType
	dialect string
}

func newSQLDatabase(db *sqlx.DB, dialect string) *SQLDatabase {
	var placeholder sq.PlaceholderFormat = sq.Question
	if dialect == dialectPostgres {
		placeholder = sq.Dollar
	}
	return &SQLDatabase{
		db:      db,
		qb:      sq.StatementBuilder.PlaceholderFormat(placeholder),
		dialect: dialect,
	}
}

// DB 暴露底层连接（迁移命令使用）
func (s *SQLDatabase) DB() *sqlx.DB {
	return s.db
}

// Insert 创建记录
func (s *SQLDatabase) Insert(ctx context.Context, rec models.Record) error {
	if rec.GetID() == "" {
		rec.SetID(uuid.NewString())
	}
	rec.Touch(time.Now())

	cols, vals := recordColumns(rec)
	vals, err := driverValues(vals)
	if err != nil {
		return err
	}
	query, args, err := s.qb.Insert(rec.TableName()).Columns(cols...).Values(vals...).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return translateError(fmt.Errorf("insert into %s: %w", rec.TableName(), err))
	}
	return nil
}

// Update 更新记录
func (s *SQLDatabase) Update(ctx context.Context, rec models.Record) error {
	if rec.GetID() == "" {
		return fmt.Errorf("update %s: missing id", rec.TableName())
	}
	rec.Touch(time.Now())

	set, err := driverMap(updateMap(rec))
	if err != nil {
		return err
	}
	query, args, err := s.qb.Update(rec.TableName()).
		SetMap(set).
		Where(sq.Eq{"id": rec.GetID()}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return translateError(fmt.Errorf("update %s: %w", rec.TableName(), err))
	}
	return requireAffected(res)
}

// Delete 删除记录
func (s *SQLDatabase) Delete(ctx context.Context, rec models.Record) error {
	query, args, err := s.qb.Delete(rec.TableName()).Where(sq.Eq{"id": rec.GetID()}).ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", rec.TableName(), err)
	}
	return requireAffected(res)
}

// Get 按 ID 读取
func (s *SQLDatabase) Get(ctx context.Context, rec models.Record) error {
	query, args, err := s.qb.Select("*").From(rec.TableName()).Where(sq.Eq{"id": rec.GetID()}).Limit(1).ToSql()
	if err != nil {
		return err
	}
	if err := s.db.GetContext(ctx, rec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s: %w", rec.TableName(), err)
	}
	return nil
}

// Find 条件查询
func (s *SQLDatabase) Find(ctx context.Context, dest interface{}, f Filter) error {
	table := f.Table
	if table == "" {
		table = tableOf(dest)
	}
	if !columnPattern.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}

	builder := s.qb.Select("*").From(table)
	if len(f.Eq) > 0 {
		if err := checkColumns(f.Eq); err != nil {
			return err
		}
		eq, err := driverMap(f.Eq)
		if err != nil {
			return err
		}
		builder = builder.Where(sq.Eq(eq))
	}
	if len(f.Gte) > 0 {
		if err := checkColumns(f.Gte); err != nil {
			return err
		}
		gte, err := driverMap(f.Gte)
		if err != nil {
			return err
		}
		builder = builder.Where(sq.GtOrEq(gte))
	}
	terms, err := f.orderTerms()
	if err != nil {
		return err
	}
	for _, t := range terms {
		dir := "ASC"
		if t.desc {
			dir = "DESC"
		}
		builder = builder.OrderBy(t.column + " " + dir)
	}
	if f.Limit > 0 {
		builder = builder.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		builder = builder.Offset(uint64(f.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	if err := s.db.SelectContext(ctx, dest, query, args...); err != nil {
		return fmt.Errorf("select from %s: %w", table, err)
	}
	return nil
}

// UpsertRateLimit 在事务里锁住限流行后再读-改-写，避免并发请求少计数
func (s *SQLDatabase) UpsertRateLimit(ctx context.Context, identifier, actionType string, apply func(*models.RateLimit) error) (*models.RateLimit, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func(tx *sqlx.Tx) {
		_ = tx.Rollback()
	}(tx)

	now := time.Now()
	seed := &models.RateLimit{Identifier: identifier, ActionType: actionType}
	seed.SetID(uuid.NewString())
	seed.Touch(now)
	cols, vals := recordColumns(seed)
	vals, err = driverValues(vals)
	if err != nil {
		return nil, err
	}
	query, args, err := s.qb.Insert(seed.TableName()).
		Columns(cols...).
		Values(vals...).
		Suffix("ON CONFLICT (identifier, action_type) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("seed rate limit row: %w", err)
	}

	sel := s.qb.Select("*").From(seed.TableName()).
		Where(sq.Eq{"identifier": identifier, "action_type": actionType})
	if s.dialect == dialectPostgres {
		sel = sel.Suffix("FOR UPDATE")
	}
	query, args, err = sel.ToSql()
	if err != nil {
		return nil, err
	}
	var rl models.RateLimit
	if err := tx.GetContext(ctx, &rl, query, args...); err != nil {
		return nil, fmt.Errorf("lock rate limit row: %w", err)
	}

	if err := apply(&rl); err != nil {
		return nil, err
	}
	rl.Touch(now)

	set, err := driverMap(updateMap(&rl))
	if err != nil {
		return nil, err
	}
	query, args, err = s.qb.Update(rl.TableName()).
		SetMap(set).
		Where(sq.Eq{"id": rl.ID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update rate limit row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &rl, nil
}

// HealthCheck 健康检查
func (s *SQLDatabase) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close 关闭连接
func (s *SQLDatabase) Close() error {
	return s.db.Close()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func checkColumns(m map[string]interface{}) error {
	for col := range m {
		if !columnPattern.MatchString(col) {
			return fmt.Errorf("invalid column %q", col)
		}
	}
	return nil
}

// driverValue 先把 Valuer、指针和自定义字符串类型转换成驱动原生值，时间统一转成 UTC
func driverValue(v interface{}) (interface{}, error) {
	dv, err := driver.DefaultParameterConverter.ConvertValue(v)
	if err != nil {
		return nil, err
	}
	if t, ok := dv.(time.Time); ok {
		return t.UTC(), nil
	}
	return dv, nil
}

func driverValues(vals []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		dv, err := driverValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = dv
	}
	return out, nil
}

func driverMap(m map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		dv, err := driverValue(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", k, err)
		}
		out[k] = dv
	}
	return out, nil
}

// translateError 把唯一约束冲突映射为 ErrConflict
func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
