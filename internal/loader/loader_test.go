package loader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"biomapper/internal/catalog"
	"biomapper/internal/domain"
	"biomapper/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRowSource 内存行源：locator → 文本内容
type fakeRowSource struct {
	data map[string]string
}

func (f *fakeRowSource) OpenRows(ctx context.Context, locator, sep string) (Rows, error) {
	content, ok := f.data[locator]
	if !ok {
		return nil, fmt.Errorf("no such resource %s", locator)
	}
	return newLineRows(strings.NewReader(content), sep, nil), nil
}

// fakeUniverse 固定的 ID 全集
type fakeUniverse struct {
	ids map[domain.Namespace][]string
}

func (f *fakeUniverse) AllIDs(ctx context.Context, ns domain.Namespace, organism domain.Organism) ([]string, error) {
	ids, ok := f.ids[ns]
	if !ok {
		return nil, fmt.Errorf("no id universe for %s", ns)
	}
	return ids, nil
}

// fakeAttrs 固定的属性查询结果
type fakeAttrs struct {
	pairs []domain.Pair
	calls int
}

func (f *fakeAttrs) FetchPairs(ctx context.Context, desc *catalog.AttributeQueryDescriptor, organism domain.Organism) ([]domain.Pair, error) {
	f.calls++
	return f.pairs, nil
}

func fileTestEntry(locator string, headerRows, organismCol int) catalog.Entry {
	return catalog.Entry{
		Source: domain.NSUniProt,
		Target: domain.NSGeneSymbol,
		Desc: catalog.Descriptor{
			Kind: catalog.KindFile,
			File: &catalog.FileDescriptor{
				Locator:     locator,
				Separator:   "\t",
				SourceCol:   0,
				TargetCol:   1,
				HeaderRows:  headerRows,
				OrganismCol: organismCol,
			},
		},
	}
}

func TestLoadFileBothDirections(t *testing.T) {
	rows := &fakeRowSource{data: map[string]string{
		"/data/up_gs.tsv": "accession\tsymbol\nP00533\tEGFR\nP04626\tERBB2\nQ15303\tERBB2\n \t\n",
	}}
	l := New(rows, nil, nil, nil, nil, time.Minute, zap.NewNop())

	res := l.Load(context.Background(), fileTestEntry("/data/up_gs.tsv", 1, -1), domain.OrganismHuman, true, true)

	require.NotNil(t, res.Forward)
	require.NotNil(t, res.Reverse)
	assert.Empty(t, res.Extra)

	assert.Equal(t, domain.TableKey{Source: domain.NSUniProt, Target: domain.NSGeneSymbol, Organism: domain.OrganismHuman}, res.Forward.Key())
	assert.Equal(t, res.Forward.Key().Mirror(), res.Reverse.Key())

	assert.True(t, res.Forward.Lookup("P00533").Equal(domain.NewIDSet("EGFR")))
	assert.True(t, res.Reverse.Lookup("ERBB2").Equal(domain.NewIDSet("P04626", "Q15303")))
	assert.Equal(t, int64(1), l.FetchCount())
}

func TestLoadFileOrganismFilter(t *testing.T) {
	rows := &fakeRowSource{data: map[string]string{
		"/data/mir.tsv": "pre\tmat\ttaxon\nhsa-mir-21\thsa-miR-21-5p\t9606\nmmu-mir-21\tmmu-miR-21-5p\t10090\n",
	}}
	l := New(rows, nil, nil, nil, nil, time.Minute, zap.NewNop())

	entry := catalog.Entry{
		Source: domain.NSMirPre,
		Target: domain.NSMirMat,
		Desc: catalog.Descriptor{
			Kind: catalog.KindFile,
			File: &catalog.FileDescriptor{
				Locator:     "/data/mir.tsv",
				Separator:   "\t",
				SourceCol:   0,
				TargetCol:   1,
				HeaderRows:  1,
				OrganismCol: 2,
			},
		},
	}

	res := l.Load(context.Background(), entry, domain.OrganismHuman, true, false)
	require.NotNil(t, res.Forward)
	assert.Equal(t, 1, res.Forward.Len())
	assert.True(t, res.Forward.Lookup("hsa-mir-21").Equal(domain.NewIDSet("hsa-miR-21-5p")))
	assert.True(t, res.Forward.Lookup("mmu-mir-21").IsEmpty())
}

func TestLoadFetchFailureDegradesToEmptyTable(t *testing.T) {
	rows := &fakeRowSource{data: map[string]string{}}
	blobs, err := store.NewDiskStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	l := New(rows, nil, nil, nil, blobs, time.Minute, zap.NewNop())

	entry := fileTestEntry("/data/missing.tsv", 0, -1)
	res := l.Load(context.Background(), entry, domain.OrganismHuman, true, true)

	require.NotNil(t, res.Forward)
	assert.Equal(t, 0, res.Forward.Len())
	assert.Equal(t, int64(1), l.FetchCount())

	// 失败结果不持久化：下一次加载重新抓取
	res = l.Load(context.Background(), entry, domain.OrganismHuman, true, true)
	require.NotNil(t, res.Forward)
	assert.Equal(t, int64(2), l.FetchCount())
}

func TestLoadBlobCacheAvoidsRefetch(t *testing.T) {
	rows := &fakeRowSource{data: map[string]string{
		"/data/up_gs.tsv": "P00533\tEGFR\n",
	}}
	blobs, err := store.NewDiskStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	l := New(rows, nil, nil, nil, blobs, time.Minute, zap.NewNop())

	entry := fileTestEntry("/data/up_gs.tsv", 0, -1)

	res := l.Load(context.Background(), entry, domain.OrganismHuman, true, true)
	require.NotNil(t, res.Forward)
	assert.Equal(t, int64(1), l.FetchCount())

	// 第二次加载走持久化缓存，不再扫描上游
	res = l.Load(context.Background(), entry, domain.OrganismHuman, true, true)
	require.NotNil(t, res.Forward)
	assert.True(t, res.Forward.Lookup("P00533").Equal(domain.NewIDSet("EGFR")))
	assert.True(t, res.Reverse.Lookup("EGFR").Equal(domain.NewIDSet("P00533")))
	assert.Equal(t, int64(1), l.FetchCount())
}

func TestLoadCorruptBlobRefetches(t *testing.T) {
	rows := &fakeRowSource{data: map[string]string{
		"/data/up_gs.tsv": "P00533\tEGFR\n",
	}}
	blobs, err := store.NewDiskStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	l := New(rows, nil, nil, nil, blobs, time.Minute, zap.NewNop())

	entry := fileTestEntry("/data/up_gs.tsv", 0, -1)
	key := domain.TableKey{Source: entry.Source, Target: entry.Target, Organism: domain.OrganismHuman}
	ctx := context.Background()

	// 预先放入损坏的 blob
	require.NoError(t, blobs.Put(ctx, blobKey("fwd", key, entry.Desc), []byte("{corrupt")))
	require.NoError(t, blobs.Put(ctx, blobKey("rev", key, entry.Desc), []byte("{corrupt")))

	res := l.Load(ctx, entry, domain.OrganismHuman, true, true)
	require.NotNil(t, res.Forward)
	assert.True(t, res.Forward.Lookup("P00533").Equal(domain.NewIDSet("EGFR")))
	// 损坏视为未命中：发生了一次上游扫描
	assert.Equal(t, int64(1), l.FetchCount())

	// 重新抓取后 blob 已被修复
	res = l.Load(ctx, entry, domain.OrganismHuman, true, true)
	assert.Equal(t, int64(1), l.FetchCount())
	assert.True(t, res.Forward.Lookup("P00533").Equal(domain.NewIDSet("EGFR")))
}

func TestLoadOntologyIgnoresOrganism(t *testing.T) {
	rows := &fakeRowSource{data: map[string]string{
		"/data/go.tsv": "GO:0005515\tprotein binding\nGO:0005634\tnucleus\n",
	}}
	l := New(rows, nil, nil, nil, nil, time.Minute, zap.NewNop())

	entry := catalog.Entry{
		Source: domain.NSGeneOntology,
		Target: domain.NSGOName,
		Desc: catalog.Descriptor{
			Kind:     catalog.KindOntology,
			Ontology: &catalog.OntologyDescriptor{Locator: "/data/go.tsv", Separator: "\t"},
		},
	}

	// 请求带物种，表仍注册在哨兵物种下
	res := l.Load(context.Background(), entry, domain.OrganismHuman, true, false)
	require.NotNil(t, res.Forward)
	assert.Equal(t, domain.NotOrganismSpecific, res.Forward.Key().Organism)
	assert.True(t, res.Forward.Lookup("GO:0005634").Equal(domain.NewIDSet("nucleus")))
}

func TestLoadAttributeQuery(t *testing.T) {
	attrs := &fakeAttrs{pairs: []domain.Pair{
		{Source: "1007_s_at", Target: "ENSG00000204580"},
	}}
	l := New(&fakeRowSource{}, nil, attrs, nil, nil, time.Minute, zap.NewNop())

	entry := catalog.Entry{
		Source: domain.NSAffyProbe,
		Target: domain.NSEnsG,
		Desc: catalog.Descriptor{
			Kind: catalog.KindAttributeQuery,
			AttributeQuery: &catalog.AttributeQueryDescriptor{
				Table:        "microarray_annotation",
				SourceAttr:   "affy_probe_id",
				TargetAttr:   "ensembl_gene_id",
				OrganismAttr: "taxon_id",
			},
		},
	}

	res := l.Load(context.Background(), entry, domain.OrganismHuman, true, false)
	require.NotNil(t, res.Forward)
	assert.Equal(t, 1, attrs.calls)
	assert.True(t, res.Forward.Lookup("1007_s_at").Equal(domain.NewIDSet("ENSG00000204580")))
}

func TestLoadRemoteListUsesUniverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Write([]byte("From\tTo\n"))
		for _, id := range strings.Fields(r.Form.Get("uploadQuery")) {
			w.Write([]byte(id + "\tG_" + id + "\n"))
		}
	}))
	defer srv.Close()

	universe := &fakeUniverse{ids: map[domain.Namespace][]string{
		domain.NSUniProt: {"P1", "P2"},
	}}
	l := New(&fakeRowSource{}, NewListClient(time.Second, zap.NewNop()), nil, universe, nil, time.Minute, zap.NewNop())

	entry := catalog.Entry{
		Source: domain.NSUniProt,
		Target: domain.NSGeneSymbol,
		Desc: catalog.Descriptor{
			Kind: catalog.KindRemoteList,
			RemoteList: &catalog.RemoteListDescriptor{
				URL:       srv.URL,
				FromParam: "ACC",
				ToParam:   "GENENAME",
				SeedNS:    domain.NSUniProt,
			},
		},
	}

	res := l.Load(context.Background(), entry, domain.OrganismHuman, true, false)
	require.NotNil(t, res.Forward)
	assert.True(t, res.Forward.Lookup("P1").Equal(domain.NewIDSet("G_P1")))
	assert.True(t, res.Forward.Lookup("P2").Equal(domain.NewIDSet("G_P2")))
}

func TestLoadBulkDumpFillsExtraTables(t *testing.T) {
	dump := strings.Join([]string{
		"P00533\tGeneID\t1956",
		"P00533\tGene_Name\tEGFR",
		"P00533\tEnsembl\tENSG00000146648",
		"P04626\tGeneID\t2064",
		"P04626\tObsoleteMarker\tXXX", // 未注册的 marker 跳过
	}, "\n")

	rows := &fakeRowSource{data: map[string]string{
		"/data/9606.idmapping.dat": dump,
	}}
	blobs, err := store.NewDiskStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	l := New(rows, nil, nil, nil, blobs, time.Minute, zap.NewNop())

	entry := catalog.Entry{
		Source: domain.NSUniProt,
		Target: domain.NSEntrez,
		Desc: catalog.Descriptor{
			Kind:     catalog.KindBulkDump,
			Lifetime: 10 * time.Minute,
			BulkDump: &catalog.BulkDumpDescriptor{
				Locator:     "/data/{organism}.idmapping.dat",
				Separator:   "\t",
				MarkerCol:   1,
				SourceCol:   0,
				TargetCol:   2,
				OrganismCol: -1,
				Markers: map[string]domain.Namespace{
					"GeneID":    domain.NSEntrez,
					"Gene_Name": domain.NSGeneSymbol,
					"Ensembl":   domain.NSEnsG,
				},
			},
		},
	}

	res := l.Load(context.Background(), entry, domain.OrganismHuman, true, true)

	require.NotNil(t, res.Forward)
	assert.Equal(t, 10*time.Minute, res.Forward.Lifetime())
	assert.True(t, res.Forward.Lookup("P00533").Equal(domain.NewIDSet("1956")))
	assert.True(t, res.Forward.Lookup("P04626").Equal(domain.NewIDSet("2064")))

	require.NotNil(t, res.Reverse)
	assert.True(t, res.Reverse.Lookup("1956").Equal(domain.NewIDSet("P00533")))

	// 一次扫描顺带装满其它 marker 的表
	require.Len(t, res.Extra, 2)
	extraTargets := map[domain.Namespace]*domain.MappingTable{}
	for _, table := range res.Extra {
		extraTargets[table.Key().Target] = table
	}
	require.Contains(t, extraTargets, domain.NSGeneSymbol)
	require.Contains(t, extraTargets, domain.NSEnsG)
	assert.True(t, extraTargets[domain.NSGeneSymbol].Lookup("P00533").Equal(domain.NewIDSet("EGFR")))

	assert.Equal(t, int64(1), l.FetchCount())

	// 请求对的两个方向都有 blob 后，重复加载不再扫描
	res = l.Load(context.Background(), entry, domain.OrganismHuman, true, true)
	require.NotNil(t, res.Forward)
	assert.True(t, res.Forward.Lookup("P00533").Equal(domain.NewIDSet("1956")))
	assert.Equal(t, int64(1), l.FetchCount())
}

func TestExpandLocator(t *testing.T) {
	assert.Equal(t, "/data/9606.dat", expandLocator("/data/{organism}.dat", domain.OrganismHuman))
	assert.Equal(t, "/data/plain.dat", expandLocator("/data/plain.dat", domain.OrganismHuman))
}

func TestTranslationCodecRoundTrip(t *testing.T) {
	tr := make(domain.Translation)
	tr.Add("P00533", "EGFR")
	tr.Add("P04626", "ERBB2")
	tr.Add("P04626", "HER2")

	data, err := encodeTranslation(tr)
	require.NoError(t, err)

	decoded, err := decodeTranslation(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.True(t, decoded["P04626"].Equal(domain.NewIDSet("ERBB2", "HER2")))

	_, err = decodeTranslation([]byte("{not json"))
	assert.Error(t, err)
}
