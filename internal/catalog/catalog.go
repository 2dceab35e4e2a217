package catalog

import (
	"fmt"

	"biomapper/internal/domain"

	"go.uber.org/zap"
)

// Entry 显式目录条目：一个命名空间对的资源描述符
// 条目同时服务正反两个方向（反向命中时由 Resolver 反转表）
type Entry struct {
	Source domain.Namespace
	Target domain.Namespace
	Desc   Descriptor
}

// Match 目录匹配结果
// Forward=true 表示请求方向与条目原生方向一致；false 表示命中了镜像方向
type Match struct {
	Entry   Entry
	Forward bool
}

// Family 隐式目录：一组可由同一个通用加载器服务的命名空间
// 匹配条件：两个命名空间都是成员，或一个是 Hub 另一个是成员
type Family struct {
	Name string
	Hub  domain.Namespace
	// Members：成员命名空间 → 服务端名称（如批量翻译服务的参数名）
	Members map[domain.Namespace]string
	// Build 为匹配到的 (source, target) 构造条目；条目自带原生方向
	// （批量翻译表总是从 Hub 侧构建）；ok=false 表示该组合不可服务
	Build func(source, target domain.Namespace) (Entry, bool)
}

func (f Family) contains(ns domain.Namespace) bool {
	if ns == f.Hub {
		return true
	}
	_, ok := f.Members[ns]
	return ok
}

func (f Family) matches(src, tgt domain.Namespace) bool {
	if src == tgt {
		return false
	}
	_, srcMember := f.Members[src]
	_, tgtMember := f.Members[tgt]
	if srcMember && tgtMember {
		return true
	}
	return (src == f.Hub && tgtMember) || (tgt == f.Hub && srcMember)
}

// Catalog 两层资源目录：显式条目优先，其次按声明顺序匹配隐式族
type Catalog struct {
	entries  []Entry
	families []Family
	logger   *zap.Logger
}

// New 创建空目录
func New(logger *zap.Logger) *Catalog {
	return &Catalog{logger: logger}
}

// Register 注册显式条目（注册时校验描述符）
func (c *Catalog) Register(e Entry) error {
	if e.Source == "" || e.Target == "" {
		return fmt.Errorf("catalog entry requires source and target namespaces")
	}
	if e.Source == e.Target {
		return fmt.Errorf("catalog entry %s->%s: namespaces must differ", e.Source, e.Target)
	}
	if err := e.Desc.Validate(); err != nil {
		return fmt.Errorf("catalog entry %s->%s: %w", e.Source, e.Target, err)
	}
	c.entries = append(c.entries, e)
	return nil
}

// RegisterFamily 注册隐式族
func (c *Catalog) RegisterFamily(f Family) error {
	if f.Name == "" {
		return fmt.Errorf("family requires a name")
	}
	if len(f.Members) == 0 {
		return fmt.Errorf("family %s requires at least one member", f.Name)
	}
	if f.Build == nil {
		return fmt.Errorf("family %s requires a descriptor builder", f.Name)
	}
	c.families = append(c.families, f)
	return nil
}

// Lookup 解析命名空间对到加载方案；第一个匹配生效
func (c *Catalog) Lookup(src, tgt domain.Namespace) (Match, bool) {
	matches := c.lookup(src, tgt, 1)
	if len(matches) == 0 {
		return Match{}, false
	}
	return matches[0], true
}

// LookupAll 按声明顺序返回所有匹配（Resolver 依次尝试候选服务时使用）
func (c *Catalog) LookupAll(src, tgt domain.Namespace) []Match {
	return c.lookup(src, tgt, 0)
}

func (c *Catalog) lookup(src, tgt domain.Namespace, limit int) []Match {
	var matches []Match

	// 第一层：显式目录，正向与镜像都匹配
	for _, e := range c.entries {
		if e.Source == src && e.Target == tgt {
			matches = append(matches, Match{Entry: e, Forward: true})
		} else if e.Source == tgt && e.Target == src {
			matches = append(matches, Match{Entry: e, Forward: false})
		}
		if limit > 0 && len(matches) >= limit {
			return matches
		}
	}

	// 第二层：隐式族，声明顺序迭代，不做评分
	for _, f := range c.families {
		if !f.matches(src, tgt) {
			continue
		}
		entry, ok := f.Build(src, tgt)
		if !ok {
			continue
		}
		if err := entry.Desc.Validate(); err != nil {
			c.logger.Warn("Family produced invalid descriptor",
				zap.String("family", f.Name),
				zap.String("source", string(src)),
				zap.String("target", string(tgt)),
				zap.Error(err),
			)
			continue
		}
		matches = append(matches, Match{
			Entry:   entry,
			Forward: entry.Source == src,
		})
		if limit > 0 && len(matches) >= limit {
			return matches
		}
	}

	return matches
}
