package registry

import (
	"context"
	"sync"
	"time"

	"biomapper/internal/domain"

	"go.uber.org/zap"
)

// Registry 进程级映射表缓存：TableKey → MappingTable
// 解析调用惰性插入，后台清扫周期性删除过期条目；
// 正确性从不依赖表在场（未命中时会透明重建）
type Registry struct {
	mu     sync.RWMutex
	tables map[domain.TableKey]*domain.MappingTable

	sweepInterval time.Duration
	now           func() time.Time
	logger        *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// Option Registry 选项
type Option func(*Registry)

// WithClock 注入时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New 创建注册表；sweepInterval<=0 时使用 10 秒
func New(sweepInterval time.Duration, logger *zap.Logger, opts ...Option) *Registry {
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Second
	}
	r := &Registry{
		tables:        make(map[domain.TableKey]*domain.MappingTable),
		sweepInterval: sweepInterval,
		now:           time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get 按键查表
func (r *Registry) Get(key domain.TableKey) (*domain.MappingTable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[key]
	return t, ok
}

// Put 插入或覆盖一张表（以表自身的键为准）
func (r *Registry) Put(t *domain.MappingTable) {
	if t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[t.Key()] = t
}

// Delete 删除一张表，返回是否存在
func (r *Registry) Delete(key domain.TableKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tables[key]
	if ok {
		delete(r.tables, key)
	}
	return ok
}

// Has 表是否在场
func (r *Registry) Has(key domain.TableKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tables[key]
	return ok
}

// Len 在场的表数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables)
}

// Sweep 删除所有过期条目，返回删除数
func (r *Registry) Sweep() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, t := range r.tables {
		if t.IsExpired(now) {
			delete(r.tables, key)
			removed++
		}
	}
	return removed
}

// Start 启动后台清扫任务（随 Registry 生命周期，不是模块级单例）
func (r *Registry) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()

		r.logger.Info("Starting registry eviction sweep",
			zap.Duration("interval", r.sweepInterval),
		)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := r.Sweep(); removed > 0 {
					r.logger.Debug("Evicted expired mapping tables",
						zap.Int("removed", removed),
						zap.Int("remaining", r.Len()),
					)
				}
			}
		}
	}()
}

// Stop 停止后台清扫并等待退出
func (r *Registry) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
}
