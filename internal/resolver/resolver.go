package resolver

import (
	"context"
	"fmt"
	"sync"

	"biomapper/internal/catalog"
	"biomapper/internal/domain"
	"biomapper/internal/loader"
	"biomapper/internal/registry"

	"go.uber.org/zap"
)

// UniProtData UniProt 清理阶段需要的仓库数据（可缺省）
type UniProtData interface {
	ReferenceProteome(ctx context.Context, organism domain.Organism) (domain.IDSet, error)
	ArchivedGeneSymbols(ctx context.Context, accession string) ([]string, error)
}

// CleanupConfig UniProt 清理各阶段的独立开关
type CleanupConfig struct {
	SecondaryToPrimary bool
	TremblToSwissProt  bool
	ResolveDeleted     bool
	ProteomeFilter     bool
	KeepUnverified     bool
	GrammarFilter      bool
}

// Config Resolver 行为配置
type Config struct {
	// LoadingEnabled 关闭后只查已在场的表，不触发目录加载
	LoadingEnabled bool
	Cleanup        CleanupConfig
}

// Resolver 标识符解析门面：注册表探测、目录加载、多跳、
// 回退启发式与 UniProt 清理的编排者
type Resolver struct {
	registry *registry.Registry
	catalog  *catalog.Catalog
	loader   *loader.Loader
	uniprot  UniProtData
	cfg      Config
	logger   *zap.Logger

	// onInvalidate 本地失效后的通知钩子（服务层接事件广播）
	onInvalidate func(from, to domain.Namespace, organism domain.Organism)

	mu        sync.Mutex
	proteomes map[domain.Organism]domain.IDSet
	prefixIdx map[prefixIdxKey]map[string]domain.IDSet

	countMu sync.Mutex
	counts  map[string]int64
}

type prefixIdxKey struct {
	target   domain.Namespace
	organism domain.Organism
}

// New 创建 Resolver；uniprot 可为 nil（对应清理阶段降级为直通）
func New(
	reg *registry.Registry,
	cat *catalog.Catalog,
	ld *loader.Loader,
	uniprot UniProtData,
	cfg Config,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		registry:  reg,
		catalog:   cat,
		loader:    ld,
		uniprot:   uniprot,
		cfg:       cfg,
		logger:    logger,
		proteomes: make(map[domain.Organism]domain.IDSet),
		prefixIdx: make(map[prefixIdxKey]map[string]domain.IDSet),
		counts:    make(map[string]int64),
	}
}

// SetInvalidationHook 设置失效通知钩子（服务装配时调用一次）
func (r *Resolver) SetInvalidationHook(fn func(from, to domain.Namespace, organism domain.Organism)) {
	r.onInvalidate = fn
}

// Resolve 把一个标识符从 from 命名空间翻译到 to 命名空间
// 未找到永远是空集合，不是错误；唯一的同步错误是非法物种
func (r *Resolver) Resolve(ctx context.Context, id string, from, to domain.Namespace, organism domain.Organism) (domain.IDSet, error) {
	if !organism.Valid() {
		return nil, fmt.Errorf("invalid organism %d: taxon id must be positive", organism)
	}
	if id == "" {
		return domain.NewIDSet(), nil
	}

	var result domain.IDSet
	if from == to {
		// 同命名空间直通；目标是 uniprot 时仍需时效性/合法性清理
		if to != domain.NSUniProt {
			return domain.NewIDSet(id), nil
		}
		result = domain.NewIDSet(id)
	} else {
		result = r.translateWithHops(ctx, id, from, to, organism)
		if result.IsEmpty() {
			result = r.fallbacks(ctx, id, from, to, organism)
		}
	}

	if to == domain.NSUniProt {
		result = r.cleanupUniProt(ctx, result, organism)
	}
	return result, nil
}

// ResolveBatch 批量解析：各 ID 独立解析后取并集，不跨 ID 共享歧义
func (r *Resolver) ResolveBatch(ctx context.Context, ids []string, from, to domain.Namespace, organism domain.Organism) (domain.IDSet, error) {
	if !organism.Valid() {
		return nil, fmt.Errorf("invalid organism %d: taxon id must be positive", organism)
	}
	result := domain.NewIDSet()
	for _, id := range ids {
		single, err := r.Resolve(ctx, id, from, to, organism)
		if err != nil {
			return nil, err
		}
		result.Union(single)
	}
	return result, nil
}

// HasTable 命名空间对的表（含镜像与物种哨兵变体）是否已在场
func (r *Resolver) HasTable(from, to domain.Namespace, organism domain.Organism) bool {
	key := domain.TableKey{Source: from, Target: to, Organism: organism}
	for _, probe := range probeKeys(key) {
		if r.registry.Has(probe) {
			return true
		}
	}
	return false
}

// Invalidate 丢弃命名空间对的所有在场表（正反方向、物种哨兵变体）
// 下次解析会透明重建
func (r *Resolver) Invalidate(from, to domain.Namespace, organism domain.Organism) {
	r.invalidate(from, to, organism, true)
}

// ApplyInvalidation 落地远端失效事件：同 Invalidate 但不触发广播钩子
// （否则实例之间会互相转发形成回环）
func (r *Resolver) ApplyInvalidation(from, to domain.Namespace, organism domain.Organism) {
	r.invalidate(from, to, organism, false)
}

func (r *Resolver) invalidate(from, to domain.Namespace, organism domain.Organism, notify bool) {
	key := domain.TableKey{Source: from, Target: to, Organism: organism}
	removed := 0
	for _, probe := range probeKeys(key) {
		if r.registry.Delete(probe) {
			removed++
		}
	}
	// 派生索引依赖基因符号表，一并作废
	r.mu.Lock()
	r.prefixIdx = make(map[prefixIdxKey]map[string]domain.IDSet)
	r.mu.Unlock()

	r.logger.Info("Invalidated mapping tables",
		zap.String("source", string(from)),
		zap.String("target", string(to)),
		zap.String("organism", organism.String()),
		zap.Int("removed", removed),
	)
	if notify && r.onInvalidate != nil {
		r.onInvalidate(from, to, organism)
	}
}

// probeKeys 注册表探测顺序：精确键、物种哨兵键、镜像键、镜像哨兵键
func probeKeys(key domain.TableKey) []domain.TableKey {
	return []domain.TableKey{
		key,
		key.WithOrganism(domain.NotOrganismSpecific),
		key.Mirror(),
		key.Mirror().WithOrganism(domain.NotOrganismSpecific),
	}
}

// tableFor 按探测顺序查找在场的表；镜像命中时反转并注册到精确键下
func (r *Resolver) tableFor(from, to domain.Namespace, organism domain.Organism) *domain.MappingTable {
	key := domain.TableKey{Source: from, Target: to, Organism: organism}
	for i, probe := range probeKeys(key) {
		t, ok := r.registry.Get(probe)
		if !ok {
			continue
		}
		if i < 2 {
			return t
		}
		derived := t.Reversed()
		r.registry.Put(derived)
		return derived
	}
	return nil
}

// loadTables 目录加载：按声明顺序尝试候选服务，直到得到非空表
// 加载产物（含转储扫描顺带装满的表）全部注册
func (r *Resolver) loadTables(ctx context.Context, from, to domain.Namespace, organism domain.Organism) *domain.MappingTable {
	if !r.cfg.LoadingEnabled {
		return nil
	}
	matches := r.catalog.LookupAll(from, to)
	if len(matches) == 0 {
		// 配置缺口：既无目录条目也无在场表，对操作者提升日志级别
		r.logger.Warn("No catalog entry for namespace pair",
			zap.String("source", string(from)),
			zap.String("target", string(to)),
		)
		return nil
	}

	for _, m := range matches {
		res := r.loader.Load(ctx, m.Entry, organism, true, true)
		if res.Forward != nil {
			r.registry.Put(res.Forward)
		}
		if res.Reverse != nil {
			r.registry.Put(res.Reverse)
		}
		for _, extra := range res.Extra {
			r.registry.Put(extra)
		}
		if t := r.tableFor(from, to, organism); t != nil && t.Len() > 0 {
			return t
		}
	}
	return r.tableFor(from, to, organism)
}

// translate 单个 ID 的表查询路径（探测 → 加载 → 查表），无回退无清理
func (r *Resolver) translate(ctx context.Context, id string, from, to domain.Namespace, organism domain.Organism) domain.IDSet {
	if from == to {
		return domain.NewIDSet(id)
	}
	t := r.tableFor(from, to, organism)
	if t == nil {
		t = r.loadTables(ctx, from, to, organism)
	}
	if t == nil {
		return domain.NewIDSet()
	}
	return t.Lookup(id)
}

// countStrategy 回退策略调用计数（测试断言调用顺序用）
func (r *Resolver) countStrategy(name string) {
	r.countMu.Lock()
	r.counts[name]++
	r.countMu.Unlock()
}

// StrategyCount 某个回退策略至今被调用的次数
func (r *Resolver) StrategyCount(name string) int64 {
	r.countMu.Lock()
	defer r.countMu.Unlock()
	return r.counts[name]
}
