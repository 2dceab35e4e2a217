package resolver

import (
	"context"
	"strings"

	"biomapper/internal/domain"
)

// caseSensitiveNamespaces UniProt accession 系的大小写敏感命名空间
// 这些命名空间跳过 capitalize/lowercase 回退（accession 语法本身区分大小写）
// 集合按源码原样保留，不做推导
var caseSensitiveNamespaces = map[domain.Namespace]bool{
	domain.NSUniProt:      true,
	domain.NSUniProtEntry: true,
	domain.NSUniProtSec:   true,
	domain.NSSwissProt:    true,
	domain.NSTrembl:       true,
	domain.NSIPI:          true,
	domain.NSEMBL:         true,
}

// fallbackStrategy 一条回退启发式：适用谓词 + 惰性求值的翻译
type fallbackStrategy struct {
	name    string
	applies func(id string, from, to domain.Namespace) bool
	run     func(r *Resolver, ctx context.Context, id string, from, to domain.Namespace, organism domain.Organism) domain.IDSet
}

// fallbackChain 固定顺序的回退链；第一个非空结果即停止
var fallbackChain = []fallbackStrategy{
	{
		name: "uppercase",
		applies: func(id string, from, to domain.Namespace) bool {
			return strings.ToUpper(id) != id
		},
		run: func(r *Resolver, ctx context.Context, id string, from, to domain.Namespace, organism domain.Organism) domain.IDSet {
			return r.translateWithHops(ctx, strings.ToUpper(id), from, to, organism)
		},
	},
	{
		name: "capitalize",
		applies: func(id string, from, to domain.Namespace) bool {
			return !caseSensitiveNamespaces[from] && capitalize(id) != id
		},
		run: func(r *Resolver, ctx context.Context, id string, from, to domain.Namespace, organism domain.Organism) domain.IDSet {
			return r.translateWithHops(ctx, capitalize(id), from, to, organism)
		},
	},
	{
		name: "lowercase",
		applies: func(id string, from, to domain.Namespace) bool {
			return !caseSensitiveNamespaces[from] && strings.ToLower(id) != id
		},
		run: func(r *Resolver, ctx context.Context, id string, from, to domain.Namespace, organism domain.Organism) domain.IDSet {
			return r.translateWithHops(ctx, strings.ToLower(id), from, to, organism)
		},
	},
	{
		name: "ensembl-version",
		applies: func(id string, from, to domain.Namespace) bool {
			if !ensemblNamespaces[from] {
				return false
			}
			_, hadVersion := stripVersion(id)
			return hadVersion
		},
		run: func(r *Resolver, ctx context.Context, id string, from, to domain.Namespace, organism domain.Organism) domain.IDSet {
			base, _ := stripVersion(id)
			return r.translateWithHops(ctx, base, from, to, organism)
		},
	},
	{
		name: "symbol-synonym",
		applies: func(id string, from, to domain.Namespace) bool {
			return from == domain.NSGeneSymbol
		},
		run: func(r *Resolver, ctx context.Context, id string, from, to domain.Namespace, organism domain.Organism) domain.IDSet {
			// 别名 → 规范符号，再从规范符号翻到目标
			canonical := r.translate(ctx, id, domain.NSGeneSymbolSyn, domain.NSGeneSymbol, organism)
			if to == domain.NSGeneSymbol {
				return canonical
			}
			out := domain.NewIDSet()
			for symbol := range canonical {
				out.Union(r.translateWithHops(ctx, symbol, domain.NSGeneSymbol, to, organism))
			}
			return out
		},
	},
	{
		name: "symbol-append-1",
		applies: func(id string, from, to domain.Namespace) bool {
			return from == domain.NSGeneSymbol
		},
		run: func(r *Resolver, ctx context.Context, id string, from, to domain.Namespace, organism domain.Organism) domain.IDSet {
			return r.translateWithHops(ctx, id+"1", from, to, organism)
		},
	},
	{
		name: "symbol-prefix5",
		applies: func(id string, from, to domain.Namespace) bool {
			return from == domain.NSGeneSymbol
		},
		run: func(r *Resolver, ctx context.Context, id string, from, to domain.Namespace, organism domain.Organism) domain.IDSet {
			return r.prefixLookup(ctx, id, to, organism)
		},
	},
}

// fallbacks 依固定顺序惰性执行回退链，返回第一个非空结果
func (r *Resolver) fallbacks(ctx context.Context, id string, from, to domain.Namespace, organism domain.Organism) domain.IDSet {
	for _, s := range fallbackChain {
		if !s.applies(id, from, to) {
			continue
		}
		r.countStrategy(s.name)
		if result := s.run(r, ctx, id, from, to, organism); !result.IsEmpty() {
			return result
		}
	}
	return domain.NewIDSet()
}

// capitalize 首字母大写、其余小写
func capitalize(id string) string {
	if id == "" {
		return id
	}
	return strings.ToUpper(id[:1]) + strings.ToLower(id[1:])
}

// prefixLookup 基因符号前 5 字符索引查询
// 索引惰性构建：已知符号截断到 5 字符，指向共享前缀的全部符号的目标并集
func (r *Resolver) prefixLookup(ctx context.Context, id string, to domain.Namespace, organism domain.Organism) domain.IDSet {
	idx := r.prefixIndex(ctx, to, organism)
	if idx == nil {
		return domain.NewIDSet()
	}
	prefix := id
	if len(prefix) > 5 {
		prefix = prefix[:5]
	}
	if targets, ok := idx[prefix]; ok {
		return targets.Clone()
	}
	return domain.NewIDSet()
}

func (r *Resolver) prefixIndex(ctx context.Context, to domain.Namespace, organism domain.Organism) map[string]domain.IDSet {
	key := prefixIdxKey{target: to, organism: organism}

	r.mu.Lock()
	if idx, ok := r.prefixIdx[key]; ok {
		r.mu.Unlock()
		return idx
	}
	r.mu.Unlock()

	t := r.tableFor(domain.NSGeneSymbol, to, organism)
	if t == nil {
		t = r.loadTables(ctx, domain.NSGeneSymbol, to, organism)
	}
	if t == nil {
		return nil
	}

	idx := make(map[string]domain.IDSet)
	t.Each(func(symbol string, targets domain.IDSet) {
		prefix := symbol
		if len(prefix) > 5 {
			prefix = prefix[:5]
		}
		set, ok := idx[prefix]
		if !ok {
			set = domain.NewIDSet()
			idx[prefix] = set
		}
		set.Union(targets)
	})

	r.mu.Lock()
	r.prefixIdx[key] = idx
	r.mu.Unlock()
	return idx
}
