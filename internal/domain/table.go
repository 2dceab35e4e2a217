package domain

import (
	"sort"
	"sync/atomic"
	"time"
)

// IDSet 标识符集合（多对多翻译的值类型）
type IDSet map[string]struct{}

// NewIDSet 创建标识符集合
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Union 把 other 的所有元素并入 s
func (s IDSet) Union(other IDSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

func (s IDSet) Clone() IDSet {
	c := make(IDSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

func (s IDSet) IsEmpty() bool {
	return len(s) == 0
}

// Slice 返回排序后的切片（用于稳定的 JSON 输出和测试断言）
func (s IDSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s IDSet) Equal(other IDSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Translation 单向映射：源标识符 → 目标标识符集合
// 键缺失表示"未找到"，从来不是错误
type Translation map[string]IDSet

// Add 追加一个 (source, target) 对
func (t Translation) Add(source, target string) {
	set, ok := t[source]
	if !ok {
		set = make(IDSet)
		t[source] = set
	}
	set.Add(target)
}

// Pair 原始标识符对（Loader 从上游扫描得到的中间形式）
type Pair struct {
	Source string
	Target string
}

// TableKey 映射表身份：(源命名空间, 目标命名空间, 物种)
type TableKey struct {
	Source   Namespace
	Target   Namespace
	Organism Organism
}

// Mirror 返回方向互换的镜像键
func (k TableKey) Mirror() TableKey {
	return TableKey{Source: k.Target, Target: k.Source, Organism: k.Organism}
}

// WithOrganism 返回替换物种后的键
func (k TableKey) WithOrganism(o Organism) TableKey {
	return TableKey{Source: k.Source, Target: k.Target, Organism: o}
}

func (k TableKey) String() string {
	return string(k.Source) + "->" + string(k.Target) + "@" + k.Organism.String()
}

// MappingTable 一张映射表：不可变的 Translation + 最近使用时间 + 存活时长
// 翻译内容构造后不再修改；唯一的可变状态是 lastUsed（Lookup 的副作用）
type MappingTable struct {
	key      TableKey
	data     Translation
	lifetime time.Duration
	lastUsed int64 // unix nano，原子读写
}

// NewMappingTable 创建映射表并标记为刚使用过
func NewMappingTable(key TableKey, data Translation, lifetime time.Duration) *MappingTable {
	if data == nil {
		data = make(Translation)
	}
	t := &MappingTable{
		key:      key,
		data:     data,
		lifetime: lifetime,
	}
	t.Touch()
	return t
}

func (t *MappingTable) Key() TableKey {
	return t.key
}

func (t *MappingTable) Lifetime() time.Duration {
	return t.lifetime
}

// Len 源标识符条目数
func (t *MappingTable) Len() int {
	return len(t.data)
}

// Lookup 查询翻译集合；未找到返回空集合；总是刷新 lastUsed
// 返回副本，调用方可以安全地并入其它集合
func (t *MappingTable) Lookup(id string) IDSet {
	t.Touch()
	set, ok := t.data[id]
	if !ok {
		return make(IDSet)
	}
	return set.Clone()
}

// Touch 刷新最近使用时间
func (t *MappingTable) Touch() {
	atomic.StoreInt64(&t.lastUsed, time.Now().UnixNano())
}

// LastUsed 最近使用时间
func (t *MappingTable) LastUsed() time.Time {
	return time.Unix(0, atomic.LoadInt64(&t.lastUsed))
}

// IsExpired 自最近使用起超过 lifetime 即过期
func (t *MappingTable) IsExpired(now time.Time) bool {
	return now.Sub(t.LastUsed()) > t.lifetime
}

// Each 遍历所有条目（构建派生索引用；回调不得修改集合）
func (t *MappingTable) Each(fn func(source string, targets IDSet)) {
	for source, targets := range t.data {
		fn(source, targets)
	}
}

// Reversed 反转映射方向，返回镜像键下的新表
// 对每个 source→target 对，在新表中加入 target→source；O(总对数)
func (t *MappingTable) Reversed() *MappingTable {
	inverted := make(Translation)
	for source, targets := range t.data {
		for target := range targets {
			inverted.Add(target, source)
		}
	}
	return NewMappingTable(t.key.Mirror(), inverted, t.lifetime)
}
