package resolver

import (
	"context"
	"regexp"

	"biomapper/internal/domain"

	"go.uber.org/zap"
)

// uniprotAC UniProt accession 语法
var uniprotAC = regexp.MustCompile(
	`^[OPQ][0-9][A-Z0-9]{3}[0-9]$|^[A-NR-Z][0-9]([A-Z][A-Z0-9]{2}[0-9]){1,2}$`,
)

// cleanupUniProt 目标为 uniprot 时的时效性/合法性清理，各阶段独立开关：
// (a) 二级 accession → 一级
// (b) TrEMBL → SwissProt（经基因符号）
// (c) 已删除 accession → 归档基因符号再解析
// (d) 参考蛋白质组过滤
// (e) accession 语法过滤
func (r *Resolver) cleanupUniProt(ctx context.Context, ids domain.IDSet, organism domain.Organism) domain.IDSet {
	if ids.IsEmpty() {
		return ids
	}
	c := r.cfg.Cleanup

	if c.SecondaryToPrimary {
		out := domain.NewIDSet()
		for ac := range ids {
			primary := r.translate(ctx, ac, domain.NSUniProtSec, domain.NSUniProt, organism)
			if primary.IsEmpty() {
				out.Add(ac)
			} else {
				out.Union(primary)
			}
		}
		ids = out
	}

	proteome := r.proteome(ctx, organism)

	if c.TremblToSwissProt && proteome != nil {
		out := domain.NewIDSet()
		for ac := range ids {
			if proteome.Has(ac) {
				out.Add(ac)
				continue
			}
			replacement := domain.NewIDSet()
			for symbol := range r.translate(ctx, ac, domain.NSUniProt, domain.NSGeneSymbol, organism) {
				replacement.Union(r.translate(ctx, symbol, domain.NSGeneSymbol, domain.NSSwissProt, organism))
			}
			if replacement.IsEmpty() {
				out.Add(ac)
			} else {
				out.Union(replacement)
			}
		}
		ids = out
	}

	if c.ResolveDeleted && r.uniprot != nil && proteome != nil {
		out := domain.NewIDSet()
		for ac := range ids {
			if proteome.Has(ac) {
				out.Add(ac)
				continue
			}
			symbols, err := r.uniprot.ArchivedGeneSymbols(ctx, ac)
			if err != nil {
				r.logger.Warn("Archive lookup failed",
					zap.String("accession", ac),
					zap.Error(err),
				)
				out.Add(ac)
				continue
			}
			replacement := domain.NewIDSet()
			for _, symbol := range symbols {
				replacement.Union(r.translate(ctx, symbol, domain.NSGeneSymbol, domain.NSUniProt, organism))
			}
			if replacement.IsEmpty() {
				out.Add(ac)
			} else {
				out.Union(replacement)
			}
		}
		ids = out
	}

	if c.ProteomeFilter && !c.KeepUnverified && proteome != nil {
		out := domain.NewIDSet()
		for ac := range ids {
			if proteome.Has(ac) {
				out.Add(ac)
			}
		}
		ids = out
	}

	if c.GrammarFilter {
		out := domain.NewIDSet()
		for ac := range ids {
			if uniprotAC.MatchString(ac) {
				out.Add(ac)
			}
		}
		ids = out
	}

	return ids
}

// proteome 物种参考蛋白质组，惰性加载并缓存；不可得时返回 nil
// （依赖它的清理阶段随之跳过）
func (r *Resolver) proteome(ctx context.Context, organism domain.Organism) domain.IDSet {
	if r.uniprot == nil || organism == domain.NotOrganismSpecific {
		return nil
	}

	r.mu.Lock()
	if p, ok := r.proteomes[organism]; ok {
		r.mu.Unlock()
		return p
	}
	r.mu.Unlock()

	p, err := r.uniprot.ReferenceProteome(ctx, organism)
	if err != nil {
		r.logger.Warn("Reference proteome unavailable",
			zap.String("organism", organism.String()),
			zap.Error(err),
		)
		return nil
	}

	r.mu.Lock()
	r.proteomes[organism] = p
	r.mu.Unlock()
	return p
}
