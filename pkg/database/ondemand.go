package database

import (
	"context"
	"sync"

	"coworking-alliance-backend/pkg/models"
)

// OnDemand 每次操作都经 resolve 取连接再转发
//
// 长期持有它的 App 不会握住一个已被空闲清理关掉的句柄：取连接同时刷新
// 优化器里的 lastUsed，被清理的连接在下次操作时重新打开
type OnDemand struct {
	config  DatabaseConfig
	resolve func(DatabaseConfig) (DatabaseInterface, error)

	mu   sync.Mutex
	last DatabaseInterface
}

// NewOnDemand resolve 通常是 GetOptimizedDatabase
func NewOnDemand(config DatabaseConfig, resolve func(DatabaseConfig) (DatabaseInterface, error)) *OnDemand {
	return &OnDemand{config: config, resolve: resolve}
}

func (d *OnDemand) conn() (DatabaseInterface, error) {
	db, err := d.resolve(d.config)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.last = db
	d.mu.Unlock()
	return db, nil
}

func (d *OnDemand) Insert(ctx context.Context, rec models.Record) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	return db.Insert(ctx, rec)
}

func (d *OnDemand) Update(ctx context.Context, rec models.Record) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	return db.Update(ctx, rec)
}

func (d *OnDemand) Delete(ctx context.Context, rec models.Record) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	return db.Delete(ctx, rec)
}

func (d *OnDemand) Get(ctx context.Context, rec models.Record) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	return db.Get(ctx, rec)
}

func (d *OnDemand) Find(ctx context.Context, dest interface{}, f Filter) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	return db.Find(ctx, dest, f)
}

func (d *OnDemand) UpsertRateLimit(ctx context.Context, identifier, actionType string, apply func(*models.RateLimit) error) (*models.RateLimit, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	return db.UpsertRateLimit(ctx, identifier, actionType, apply)
}

func (d *OnDemand) HealthCheck() error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	return db.HealthCheck()
}

// Close 关闭最近一次取到的连接；之后的操作会重新打开
func (d *OnDemand) Close() error {
	d.mu.Lock()
	db := d.last
	d.last = nil
	d.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}
