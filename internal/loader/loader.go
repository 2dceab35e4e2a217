package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"biomapper/internal/catalog"
	"biomapper/internal/domain"
	"biomapper/internal/store"

	"go.uber.org/zap"
)

// Universe 提供某命名空间在某物种下的已知 ID 全集
// （批量翻译上传用；由仓库层实现）
type Universe interface {
	AllIDs(ctx context.Context, ns domain.Namespace, organism domain.Organism) ([]string, error)
}

// AttributeSource 对结构化数据仓库做双属性查询（由仓库层实现）
type AttributeSource interface {
	FetchPairs(ctx context.Context, desc *catalog.AttributeQueryDescriptor, organism domain.Organism) ([]domain.Pair, error)
}

// Result 一次加载的产物
// Forward/Reverse 按请求的方向给出；Extra 是转储扫描顺带装满的其它表
type Result struct {
	Forward *domain.MappingTable
	Reverse *domain.MappingTable
	Extra   []*domain.MappingTable
}

// Loader 把资源描述符物化为映射表：先查持久化 blob，未命中时
// 执行一次上游扫描，同时构建请求的两个方向并尽力持久化
type Loader struct {
	rows            RowSource
	list            *ListClient
	attrs           AttributeSource
	universe        Universe
	blobs           store.BlobStore
	defaultLifetime time.Duration
	logger          *zap.Logger

	fetchCount int64
}

// New 创建加载器；attrs/universe/blobs 可以为 nil（对应能力降级）
func New(
	rows RowSource,
	list *ListClient,
	attrs AttributeSource,
	universe Universe,
	blobs store.BlobStore,
	defaultLifetime time.Duration,
	logger *zap.Logger,
) *Loader {
	return &Loader{
		rows:            rows,
		list:            list,
		attrs:           attrs,
		universe:        universe,
		blobs:           blobs,
		defaultLifetime: defaultLifetime,
		logger:          logger,
	}
}

// FetchCount 上游扫描次数（测试用探针）
func (l *Loader) FetchCount() int64 {
	return atomic.LoadInt64(&l.fetchCount)
}

// Load 为目录条目与物种物化映射表
// 任何抓取失败都降级为空表并记录日志，从不向调用方传播
func (l *Loader) Load(ctx context.Context, entry catalog.Entry, organism domain.Organism, loadForward, loadReverse bool) *Result {
	if entry.Desc.Kind == catalog.KindOntology {
		// 本体表与物种无关
		organism = domain.NotOrganismSpecific
	}

	if entry.Desc.Kind == catalog.KindBulkDump {
		return l.loadBulk(ctx, entry, organism, loadForward, loadReverse)
	}

	key := domain.TableKey{Source: entry.Source, Target: entry.Target, Organism: organism}
	lifetime := l.lifetime(entry.Desc)

	// 持久化缓存命中则直接反序列化
	fwdTr, fwdHit := l.blobGet(ctx, blobKey("fwd", key, entry.Desc))
	revTr, revHit := l.blobGet(ctx, blobKey("rev", key, entry.Desc))
	if (!loadForward || fwdHit) && (!loadReverse || revHit) {
		res := &Result{}
		if loadForward {
			res.Forward = domain.NewMappingTable(key, fwdTr, lifetime)
		}
		if loadReverse {
			res.Reverse = domain.NewMappingTable(key.Mirror(), revTr, lifetime)
		}
		return res
	}

	pairs, err := l.fetchPairs(ctx, entry.Desc, key)
	if err != nil {
		l.logger.Warn("Fetch failed, degrading to empty table",
			zap.String("table", key.String()),
			zap.String("kind", string(entry.Desc.Kind)),
			zap.Error(err),
		)
		pairs = nil
	}

	res := &Result{}
	if loadForward {
		tr := make(domain.Translation)
		for _, p := range pairs {
			tr.Add(p.Source, p.Target)
		}
		res.Forward = domain.NewMappingTable(key, tr, lifetime)
		if err == nil {
			l.blobPut(ctx, blobKey("fwd", key, entry.Desc), tr)
		}
	}
	if loadReverse {
		tr := make(domain.Translation)
		for _, p := range pairs {
			tr.Add(p.Target, p.Source)
		}
		res.Reverse = domain.NewMappingTable(key.Mirror(), tr, lifetime)
		if err == nil {
			l.blobPut(ctx, blobKey("rev", key, entry.Desc), tr)
		}
	}
	return res
}

// fetchPairs 按 Kind 分发到具体策略，一次上游扫描
func (l *Loader) fetchPairs(ctx context.Context, desc catalog.Descriptor, key domain.TableKey) ([]domain.Pair, error) {
	atomic.AddInt64(&l.fetchCount, 1)

	switch desc.Kind {
	case catalog.KindFile:
		return l.fetchFile(ctx, desc.File, key.Organism)
	case catalog.KindRemoteList:
		return l.fetchRemoteList(ctx, desc.RemoteList, key.Organism)
	case catalog.KindOntology:
		return l.fetchOntology(ctx, desc.Ontology)
	case catalog.KindAttributeQuery:
		if l.attrs == nil {
			return nil, errors.New("attribute source not configured")
		}
		return l.attrs.FetchPairs(ctx, desc.AttributeQuery, key.Organism)
	default:
		return nil, fmt.Errorf("unknown loader kind %q", desc.Kind)
	}
}

// fetchFile 读取分隔文本源，按列号切分并聚合
func (l *Loader) fetchFile(ctx context.Context, desc *catalog.FileDescriptor, organism domain.Organism) ([]domain.Pair, error) {
	sep := desc.Separator
	if sep == "" {
		sep = "\t"
	}
	rows, err := l.rows.OpenRows(ctx, expandLocator(desc.Locator, organism), sep)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	minCols := desc.SourceCol
	if desc.TargetCol > minCols {
		minCols = desc.TargetCol
	}
	if desc.OrganismCol > minCols {
		minCols = desc.OrganismCol
	}

	var pairs []domain.Pair
	skipped := 0
	line := 0
	for {
		fields, ok := rows.Next()
		if !ok {
			break
		}
		line++
		if line <= desc.HeaderRows {
			continue
		}
		if len(fields) <= minCols {
			skipped++
			continue
		}
		if desc.OrganismCol >= 0 && organism != domain.NotOrganismSpecific {
			if strings.TrimSpace(fields[desc.OrganismCol]) != strconv.Itoa(int(organism)) {
				continue
			}
		}
		source := strings.TrimSpace(fields[desc.SourceCol])
		target := strings.TrimSpace(fields[desc.TargetCol])
		if source == "" || target == "" {
			skipped++
			continue
		}
		pairs = append(pairs, domain.Pair{Source: source, Target: target})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if skipped > 0 {
		l.logger.Debug("Skipped malformed rows",
			zap.String("locator", desc.Locator),
			zap.Int("skipped", skipped),
		)
	}
	return pairs, nil
}

// fetchRemoteList 把物种的 ID 全集分块提交给批量翻译服务
func (l *Loader) fetchRemoteList(ctx context.Context, desc *catalog.RemoteListDescriptor, organism domain.Organism) ([]domain.Pair, error) {
	if l.list == nil {
		return nil, errors.New("list client not configured")
	}
	if l.universe == nil {
		return nil, errors.New("id universe not configured")
	}
	ids, err := l.universe.AllIDs(ctx, desc.SeedNS, organism)
	if err != nil {
		return nil, fmt.Errorf("failed to collect %s id universe: %w", desc.SeedNS, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return l.list.Translate(ctx, desc.URL, desc.FromParam, desc.ToParam, ids, desc.ChunkSize), nil
}

// fetchOntology 全局 id↔术语对流
func (l *Loader) fetchOntology(ctx context.Context, desc *catalog.OntologyDescriptor) ([]domain.Pair, error) {
	sep := desc.Separator
	if sep == "" {
		sep = "\t"
	}
	rows, err := l.rows.OpenRows(ctx, desc.Locator, sep)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []domain.Pair
	for {
		fields, ok := rows.Next()
		if !ok {
			break
		}
		if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
			continue
		}
		pairs = append(pairs, domain.Pair{Source: fields[0], Target: fields[1]})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// loadBulk 单次扫描超大转储文件，按 marker 列同时填充多张表
func (l *Loader) loadBulk(ctx context.Context, entry catalog.Entry, organism domain.Organism, loadForward, loadReverse bool) *Result {
	desc := entry.Desc
	bd := desc.BulkDump
	lifetime := l.lifetime(desc)
	reqKey := domain.TableKey{Source: entry.Source, Target: entry.Target, Organism: organism}

	// 请求的方向都有 blob 时跳过扫描（其余表不顺带装入，
	// 需要时各自的条目会再触发）
	fwdTr, fwdHit := l.blobGet(ctx, blobKey("fwd", reqKey, desc))
	revTr, revHit := l.blobGet(ctx, blobKey("rev", reqKey, desc))
	if (!loadForward || fwdHit) && (!loadReverse || revHit) {
		res := &Result{}
		if loadForward {
			res.Forward = domain.NewMappingTable(reqKey, fwdTr, lifetime)
		}
		if loadReverse {
			res.Reverse = domain.NewMappingTable(reqKey.Mirror(), revTr, lifetime)
		}
		return res
	}

	translations, err := l.scanBulk(ctx, bd, organism)
	if err != nil {
		l.logger.Warn("Bulk dump scan failed, degrading to empty table",
			zap.String("table", reqKey.String()),
			zap.Error(err),
		)
		translations = nil
	}

	res := &Result{}
	for ns, tr := range translations {
		key := domain.TableKey{Source: entry.Source, Target: ns, Organism: organism}
		l.blobPut(ctx, blobKey("fwd", key, desc), tr)
		table := domain.NewMappingTable(key, tr, lifetime)
		if ns == entry.Target {
			continue // 请求的表在下面按方向标志处理
		}
		res.Extra = append(res.Extra, table)
	}

	reqTr := translations[entry.Target]
	if loadForward {
		res.Forward = domain.NewMappingTable(reqKey, reqTr, lifetime)
	}
	if loadReverse {
		inverted := make(domain.Translation)
		for source, targets := range reqTr {
			for target := range targets {
				inverted.Add(target, source)
			}
		}
		res.Reverse = domain.NewMappingTable(reqKey.Mirror(), inverted, lifetime)
		if err == nil {
			l.blobPut(ctx, blobKey("rev", reqKey, desc), inverted)
		}
	}
	return res
}

func (l *Loader) scanBulk(ctx context.Context, bd *catalog.BulkDumpDescriptor, organism domain.Organism) (map[domain.Namespace]domain.Translation, error) {
	atomic.AddInt64(&l.fetchCount, 1)

	sep := bd.Separator
	if sep == "" {
		sep = "\t"
	}
	rows, err := l.rows.OpenRows(ctx, expandLocator(bd.Locator, organism), sep)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	minCols := bd.MarkerCol
	for _, col := range []int{bd.SourceCol, bd.TargetCol, bd.OrganismCol} {
		if col > minCols {
			minCols = col
		}
	}

	translations := make(map[domain.Namespace]domain.Translation)
	unknownMarkers := 0
	for {
		fields, ok := rows.Next()
		if !ok {
			break
		}
		if len(fields) <= minCols {
			continue
		}
		ns, ok := bd.Markers[strings.TrimSpace(fields[bd.MarkerCol])]
		if !ok {
			unknownMarkers++
			continue
		}
		if bd.OrganismCol >= 0 && organism != domain.NotOrganismSpecific {
			if strings.TrimSpace(fields[bd.OrganismCol]) != strconv.Itoa(int(organism)) {
				continue
			}
		}
		source := strings.TrimSpace(fields[bd.SourceCol])
		target := strings.TrimSpace(fields[bd.TargetCol])
		if source == "" || target == "" {
			continue
		}
		tr, ok := translations[ns]
		if !ok {
			tr = make(domain.Translation)
			translations[ns] = tr
		}
		tr.Add(source, target)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if unknownMarkers > 0 {
		l.logger.Debug("Skipped rows with unknown markers",
			zap.String("locator", bd.Locator),
			zap.Int("skipped", unknownMarkers),
		)
	}
	return translations, nil
}

func (l *Loader) lifetime(desc catalog.Descriptor) time.Duration {
	if desc.Lifetime > 0 {
		return desc.Lifetime
	}
	return l.defaultLifetime
}

// blobGet 读取并反序列化 blob；缺失、不可读或损坏都静默视为未命中
func (l *Loader) blobGet(ctx context.Context, key string) (domain.Translation, bool) {
	if l.blobs == nil {
		return nil, false
	}
	data, err := l.blobs.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrCacheMiss) {
			l.logger.Warn("Blob read failed, refetching", zap.String("blob", key), zap.Error(err))
		}
		return nil, false
	}
	tr, err := decodeTranslation(data)
	if err != nil {
		l.logger.Warn("Corrupt blob, refetching", zap.String("blob", key), zap.Error(err))
		return nil, false
	}
	return tr, true
}

// blobPut 尽力持久化：写失败只记日志
func (l *Loader) blobPut(ctx context.Context, key string, tr domain.Translation) {
	if l.blobs == nil {
		return
	}
	data, err := encodeTranslation(tr)
	if err != nil {
		l.logger.Warn("Blob encode failed", zap.String("blob", key), zap.Error(err))
		return
	}
	if err := l.blobs.Put(ctx, key, data); err != nil {
		l.logger.Warn("Blob write failed, cache disabled for this table",
			zap.String("blob", key),
			zap.Error(err),
		)
	}
}

// blobKey 内容哈希：方向 + 表键 + 描述符全部字段
func blobKey(direction string, key domain.TableKey, desc catalog.Descriptor) string {
	payload, _ := json.Marshal(struct {
		Direction string
		Key       domain.TableKey
		Desc      catalog.Descriptor
	}{direction, key, desc})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// expandLocator 把 {organism} 占位符替换为具体的 taxon id
func expandLocator(locator string, organism domain.Organism) string {
	if !strings.Contains(locator, "{organism}") {
		return locator
	}
	return strings.ReplaceAll(locator, "{organism}", strconv.Itoa(int(organism)))
}

// encodeTranslation / decodeTranslation blob 的序列化格式（对调用方不透明）
func encodeTranslation(tr domain.Translation) ([]byte, error) {
	out := make(map[string][]string, len(tr))
	for source, targets := range tr {
		out[source] = targets.Slice()
	}
	return json.Marshal(out)
}

func decodeTranslation(data []byte) (domain.Translation, error) {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	tr := make(domain.Translation, len(raw))
	for source, targets := range raw {
		for _, target := range targets {
			tr.Add(source, target)
		}
	}
	return tr, nil
}
