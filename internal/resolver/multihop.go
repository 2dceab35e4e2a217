package resolver

import (
	"context"
	"regexp"
	"strconv"

	"biomapper/internal/domain"
)

// 不能直接解析、需要经固定中间命名空间两跳的族
var (
	probeNamespaces = map[domain.Namespace]bool{
		domain.NSAffyProbe:     true,
		domain.NSIlluminaProbe: true,
		domain.NSAgilentProbe:  true,
	}
	ensemblNamespaces = map[domain.Namespace]bool{
		domain.NSEnsG: true,
		domain.NSEnsT: true,
		domain.NSEnsP: true,
	}
	refseqNamespaces = map[domain.Namespace]bool{
		domain.NSRefSeqP: true,
		domain.NSRefSeqN: true,
	}
)

// refseqVersionRange RefSeq 版本号替换重试的范围
const refseqVersionRange = 5

var versionSuffix = regexp.MustCompile(`\.\d+$`)

// stripVersion 去掉 ".N" 版本后缀；返回是否存在后缀
func stripVersion(id string) (string, bool) {
	if loc := versionSuffix.FindStringIndex(id); loc != nil {
		return id[:loc[0]], true
	}
	return id, false
}

// translateWithHops 表查询 + 多跳链（§探针经 Ensembl 肽、RefSeq 版本重试）
func (r *Resolver) translateWithHops(ctx context.Context, id string, from, to domain.Namespace, organism domain.Organism) domain.IDSet {
	result := r.translate(ctx, id, from, to, organism)
	if !result.IsEmpty() {
		return result
	}

	// 微阵列探针 ↔ 非 Ensembl：经 Ensembl 肽两跳
	// （ensp 一侧的候选服务由目录按声明顺序依次尝试）
	if probeNamespaces[from] && !ensemblNamespaces[to] {
		if out := r.twoHop(ctx, id, from, domain.NSEnsP, to, organism); !out.IsEmpty() {
			return out
		}
	}
	if probeNamespaces[to] && !ensemblNamespaces[from] {
		if out := r.twoHop(ctx, id, from, domain.NSEnsP, to, organism); !out.IsEmpty() {
			return out
		}
	}

	// RefSeq：去版本号重试，然后小范围替换版本号重试
	if refseqNamespaces[from] {
		base, hadVersion := stripVersion(id)
		if hadVersion {
			if out := r.translate(ctx, base, from, to, organism); !out.IsEmpty() {
				return out
			}
		}
		for v := 1; v <= refseqVersionRange; v++ {
			candidate := base + "." + strconv.Itoa(v)
			if candidate == id {
				continue
			}
			if out := r.translate(ctx, candidate, from, to, organism); !out.IsEmpty() {
				return out
			}
		}
	}

	return result
}

// twoHop 经中间命名空间的两跳翻译
func (r *Resolver) twoHop(ctx context.Context, id string, from, via, to domain.Namespace, organism domain.Organism) domain.IDSet {
	out := domain.NewIDSet()
	for mid := range r.translate(ctx, id, from, via, organism) {
		out.Union(r.translate(ctx, mid, via, to, organism))
	}
	return out
}
