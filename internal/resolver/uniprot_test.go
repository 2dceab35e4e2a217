package resolver

import (
	"context"
	"testing"

	"biomapper/internal/catalog"
	"biomapper/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniProtACGrammar(t *testing.T) {
	valid := []string{"P00533", "Q4VBQ5", "O15350", "A0A024R161", "B3KXA5"}
	for _, ac := range valid {
		assert.True(t, uniprotAC.MatchString(ac), ac)
	}

	invalid := []string{"P0053", "p00533", "EGFR", "ENSG00000146648", "P00533-2", ""}
	for _, ac := range invalid {
		assert.False(t, uniprotAC.MatchString(ac), ac)
	}
}

func TestCleanupSecondaryToPrimary(t *testing.T) {
	env := newEnv(t,
		map[string]string{"/data/sec_ac.tsv": "Q4VBQ5\tP63010"},
		[]catalog.Entry{fileEntry(domain.NSUniProtSec, domain.NSUniProt, "/data/sec_ac.tsv")},
		Config{
			LoadingEnabled: true,
			Cleanup:        CleanupConfig{SecondaryToPrimary: true},
		}, nil)

	// 同命名空间 uniprot→uniprot 仍要经过清理
	got, err := env.resolver.Resolve(context.Background(), "Q4VBQ5", domain.NSUniProt, domain.NSUniProt, domain.OrganismHuman)
	require.NoError(t, err)
	assert.True(t, got.Equal(domain.NewIDSet("P63010")))

	// 没有二级记录的 accession 原样保留
	got, err = env.resolver.Resolve(context.Background(), "P00533", domain.NSUniProt, domain.NSUniProt, domain.OrganismHuman)
	require.NoError(t, err)
	assert.True(t, got.Equal(domain.NewIDSet("P00533")))
}

func TestCleanupGrammarFilter(t *testing.T) {
	env := newEnv(t,
		map[string]string{"/data/gs_up.tsv": "EGFR\tP00533\nJUNK\tnot-an-accession"},
		[]catalog.Entry{fileEntry(domain.NSGeneSymbol, domain.NSUniProt, "/data/gs_up.tsv")},
		Config{
			LoadingEnabled: true,
			Cleanup:        CleanupConfig{GrammarFilter: true},
		}, nil)

	got, err := env.resolver.Resolve(context.Background(), "EGFR", domain.NSGeneSymbol, domain.NSUniProt, domain.OrganismHuman)
	require.NoError(t, err)
	assert.True(t, got.Equal(domain.NewIDSet("P00533")))

	// 语法不合法的翻译结果被过滤掉
	got, err = env.resolver.Resolve(context.Background(), "JUNK", domain.NSGeneSymbol, domain.NSUniProt, domain.OrganismHuman)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestCleanupProteomeFilter(t *testing.T) {
	uniprot := &fakeUniProt{proteome: domain.NewIDSet("P00533")}
	env := newEnv(t,
		map[string]string{"/data/gs_up.tsv": "EGFR\tP00533\nOLD1\tP99999"},
		[]catalog.Entry{fileEntry(domain.NSGeneSymbol, domain.NSUniProt, "/data/gs_up.tsv")},
		Config{
			LoadingEnabled: true,
			Cleanup:        CleanupConfig{ProteomeFilter: true},
		}, uniprot)

	got, err := env.resolver.Resolve(context.Background(), "EGFR", domain.NSGeneSymbol, domain.NSUniProt, domain.OrganismHuman)
	require.NoError(t, err)
	assert.True(t, got.Equal(domain.NewIDSet("P00533")))

	got, err = env.resolver.Resolve(context.Background(), "OLD1", domain.NSGeneSymbol, domain.NSUniProt, domain.OrganismHuman)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestCleanupProteomeFilterKeepUnverified(t *testing.T) {
	uniprot := &fakeUniProt{proteome: domain.NewIDSet("P00533")}
	env := newEnv(t,
		map[string]string{"/data/gs_up.tsv": "OLD1\tP99999"},
		[]catalog.Entry{fileEntry(domain.NSGeneSymbol, domain.NSUniProt, "/data/gs_up.tsv")},
		Config{
			LoadingEnabled: true,
			Cleanup:        CleanupConfig{ProteomeFilter: true, KeepUnverified: true},
		}, uniprot)

	// KeepUnverified 关闭过滤
	got, err := env.resolver.Resolve(context.Background(), "OLD1", domain.NSGeneSymbol, domain.NSUniProt, domain.OrganismHuman)
	require.NoError(t, err)
	assert.True(t, got.Equal(domain.NewIDSet("P99999")))
}

func TestCleanupProteomeUnavailableSkipsFilter(t *testing.T) {
	// 蛋白质组不可得：依赖它的阶段跳过而不是清空结果
	uniprot := &fakeUniProt{proteome: nil}
	env := newEnv(t,
		map[string]string{"/data/gs_up.tsv": "EGFR\tP00533"},
		[]catalog.Entry{fileEntry(domain.NSGeneSymbol, domain.NSUniProt, "/data/gs_up.tsv")},
		Config{
			LoadingEnabled: true,
			Cleanup:        CleanupConfig{ProteomeFilter: true},
		}, uniprot)

	got, err := env.resolver.Resolve(context.Background(), "EGFR", domain.NSGeneSymbol, domain.NSUniProt, domain.OrganismHuman)
	require.NoError(t, err)
	assert.True(t, got.Equal(domain.NewIDSet("P00533")))
}

func TestCleanupTremblToSwissProt(t *testing.T) {
	uniprot := &fakeUniProt{proteome: domain.NewIDSet("P00533")}
	env := newEnv(t,
		map[string]string{
			"/data/gs_up.tsv": "EGFR\tB3KXA5",
			"/data/up_gs.tsv": "B3KXA5\tEGFR",
			"/data/gs_sp.tsv": "EGFR\tP00533",
		},
		[]catalog.Entry{
			fileEntry(domain.NSGeneSymbol, domain.NSUniProt, "/data/gs_up.tsv"),
			fileEntry(domain.NSUniProt, domain.NSGeneSymbol, "/data/up_gs.tsv"),
			fileEntry(domain.NSGeneSymbol, domain.NSSwissProt, "/data/gs_sp.tsv"),
		},
		Config{
			LoadingEnabled: true,
			Cleanup:        CleanupConfig{TremblToSwissProt: true},
		}, uniprot)

	// B3KXA5 不在参考蛋白质组：经基因符号替换为 SwissProt 条目
	got, err := env.resolver.Resolve(context.Background(), "EGFR", domain.NSGeneSymbol, domain.NSUniProt, domain.OrganismHuman)
	require.NoError(t, err)
	assert.True(t, got.Equal(domain.NewIDSet("P00533")))
}

func TestCleanupResolveDeleted(t *testing.T) {
	uniprot := &fakeUniProt{
		proteome: domain.NewIDSet("P00533"),
		archive:  map[string][]string{"Q14756": {"EGFR"}},
	}
	env := newEnv(t,
		map[string]string{
			"/data/gs_up.tsv": "OLD\tQ14756\nEGFR\tP00533",
		},
		[]catalog.Entry{
			fileEntry(domain.NSGeneSymbol, domain.NSUniProt, "/data/gs_up.tsv"),
		},
		Config{
			LoadingEnabled: true,
			Cleanup:        CleanupConfig{ResolveDeleted: true},
		}, uniprot)

	// 已删除的 accession 经归档基因符号重新解析
	got, err := env.resolver.Resolve(context.Background(), "OLD", domain.NSGeneSymbol, domain.NSUniProt, domain.OrganismHuman)
	require.NoError(t, err)
	assert.True(t, got.Equal(domain.NewIDSet("P00533")))
}

func TestCleanupStagesDisabledPassThrough(t *testing.T) {
	env := newEnv(t,
		map[string]string{"/data/gs_up.tsv": "JUNK\tnot-an-accession"},
		[]catalog.Entry{fileEntry(domain.NSGeneSymbol, domain.NSUniProt, "/data/gs_up.tsv")},
		Config{LoadingEnabled: true}, nil)

	// 所有阶段关闭：结果原样返回
	got, err := env.resolver.Resolve(context.Background(), "JUNK", domain.NSGeneSymbol, domain.NSUniProt, domain.OrganismHuman)
	require.NoError(t, err)
	assert.True(t, got.Equal(domain.NewIDSet("not-an-accession")))
}
