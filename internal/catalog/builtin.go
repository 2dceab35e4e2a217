package catalog

import (
	"fmt"
	"time"

	"biomapper/internal/domain"
)

// Builtins 内置目录的外部参数（来自服务配置）
type Builtins struct {
	// ListURL 批量 ID 翻译服务地址
	ListURL string
	// ListChunkSize 批量翻译每块的 ID 数（<=0 用加载器默认值）
	ListChunkSize int
	// BulkDumpURL 全量转储文件地址，可含 {organism} 占位符
	BulkDumpURL string
	// BulkLifetime 转储扫描产生的表的存活时长（比默认更长）
	BulkLifetime time.Duration
}

// listServiceNames 批量翻译服务端的命名空间名称
// 成员集合约 30 个，新增命名空间在此注册即可被隐式族服务
var listServiceNames = map[domain.Namespace]string{
	domain.NSUniProt:      "ACC",
	domain.NSUniProtEntry: "ID",
	domain.NSSwissProt:    "SWISSPROT",
	domain.NSTrembl:       "TREMBL",
	domain.NSGeneSymbol:   "GENENAME",
	domain.NSEntrez:       "P_ENTREZGENEID",
	domain.NSHGNC:         "HGNC_ID",
	domain.NSMGI:          "MGI_ID",
	domain.NSEnsG:         "ENSEMBL_ID",
	domain.NSEnsT:         "ENSEMBL_TRS_ID",
	domain.NSEnsP:         "ENSEMBL_PRO_ID",
	domain.NSRefSeqP:      "P_REFSEQ_AC",
	domain.NSRefSeqN:      "REFSEQ_NT_ID",
	domain.NSEMBL:         "EMBL",
	domain.NSIPI:          "P_IPI",
	domain.NSPDB:          "PDB_ID",
	domain.NSKEGG:         "KEGG_ID",
	domain.NSMirBase:      "MIRBASE_ID",
	domain.NSProteinName:  "GENENAME_PROTEIN",
	domain.NSChEBI:        "CHEBI_ID",
	domain.NSPubChem:      "PUBCHEM_ID",
}

// probeAttrNames 微阵列探针命名空间在阵列注释仓库中的属性名
var probeAttrNames = map[domain.Namespace]string{
	domain.NSAffyProbe:     "affy_probe_id",
	domain.NSIlluminaProbe: "illumina_probe_id",
	domain.NSAgilentProbe:  "agilent_probe_id",
}

// ensemblAttrNames 阵列注释仓库中的 Ensembl 属性名
var ensemblAttrNames = map[domain.Namespace]string{
	domain.NSEnsG: "ensembl_gene_id",
	domain.NSEnsT: "ensembl_transcript_id",
	domain.NSEnsP: "ensembl_peptide_id",
}

// bulkDumpMarkers 转储行 marker 值 → 目标命名空间
// 未在此注册的 marker 在扫描时被跳过
var bulkDumpMarkers = map[string]domain.Namespace{
	"GeneID":       domain.NSEntrez,
	"Gene_Name":    domain.NSGeneSymbol,
	"RefSeq":       domain.NSRefSeqP,
	"RefSeq_NT":    domain.NSRefSeqN,
	"Ensembl":      domain.NSEnsG,
	"Ensembl_TRS":  domain.NSEnsT,
	"Ensembl_PRO":  domain.NSEnsP,
	"HGNC":         domain.NSHGNC,
	"MGI":          domain.NSMGI,
	"PDB":          domain.NSPDB,
	"KEGG":         domain.NSKEGG,
	"EMBL":         domain.NSEMBL,
	"UniProtKB-ID": domain.NSUniProtEntry,
}

// RegisterBuiltins 注册内置的显式条目与隐式族
func RegisterBuiltins(c *Catalog, cfg Builtins) error {
	entries := []Entry{
		// UniProt 二级 accession → 一级 accession
		{
			Source: domain.NSUniProtSec,
			Target: domain.NSUniProt,
			Desc: Descriptor{
				Kind: KindFile,
				File: &FileDescriptor{
					Locator:     "https://ftp.uniprot.org/pub/databases/uniprot/knowledgebase/complete/docs/sec_ac.txt",
					Separator:   " ",
					SourceCol:   0,
					TargetCol:   1,
					HeaderRows:  31,
					OrganismCol: -1,
				},
			},
		},
		// 基因符号别名 → 规范符号（HGNC 全集）
		{
			Source: domain.NSGeneSymbolSyn,
			Target: domain.NSGeneSymbol,
			Desc: Descriptor{
				Kind: KindFile,
				File: &FileDescriptor{
					Locator:     "https://ftp.ebi.ac.uk/pub/databases/genenames/hgnc/tsv/hgnc_alias_symbols.tsv",
					Separator:   "\t",
					SourceCol:   0,
					TargetCol:   1,
					HeaderRows:  1,
					OrganismCol: -1,
				},
			},
		},
		// miRBase 前体 → 成熟体
		{
			Source: domain.NSMirPre,
			Target: domain.NSMirMat,
			Desc: Descriptor{
				Kind: KindFile,
				File: &FileDescriptor{
					Locator:     "https://www.mirbase.org/download/mature_pre.tsv.gz",
					Separator:   "\t",
					SourceCol:   0,
					TargetCol:   1,
					HeaderRows:  1,
					OrganismCol: 2,
				},
			},
		},
		// GO ID ↔ 术语名（与物种无关）
		{
			Source: domain.NSGeneOntology,
			Target: domain.NSGOName,
			Desc: Descriptor{
				Kind: KindOntology,
				Ontology: &OntologyDescriptor{
					Locator:   "https://purl.obolibrary.org/obo/go/go-basic-terms.tsv",
					Separator: "\t",
				},
			},
		},
	}
	for _, e := range entries {
		if err := c.Register(e); err != nil {
			return fmt.Errorf("register builtin entry: %w", err)
		}
	}

	// UniProt idmapping 全量转储：一次扫描填充一打表
	// 同一个描述符注册到每个 marker 对应的命名空间对上，任何一对命中
	// 都会触发同一次扫描并顺带装入其余各表
	bulkDesc := Descriptor{
		Kind:     KindBulkDump,
		Lifetime: cfg.BulkLifetime,
		BulkDump: &BulkDumpDescriptor{
			Locator:     cfg.BulkDumpURL,
			Separator:   "\t",
			MarkerCol:   1,
			SourceCol:   0,
			TargetCol:   2,
			OrganismCol: -1,
			Markers:     bulkDumpMarkers,
		},
	}
	registered := make(map[domain.Namespace]bool)
	for _, target := range bulkDumpMarkers {
		if registered[target] {
			continue
		}
		registered[target] = true
		if err := c.Register(Entry{Source: domain.NSUniProt, Target: target, Desc: bulkDesc}); err != nil {
			return fmt.Errorf("register bulk dump entry: %w", err)
		}
	}

	// 微阵列探针族：每个探针命名空间都能经阵列注释仓库到达
	// Ensembl 基因/转录本/肽；按声明顺序，第一个匹配生效
	for _, hub := range []domain.Namespace{domain.NSEnsG, domain.NSEnsT, domain.NSEnsP} {
		hub := hub
		family := Family{
			Name:    "array-" + string(hub),
			Hub:     hub,
			Members: probeAttrNames,
			Build: func(src, tgt domain.Namespace) (Entry, bool) {
				probe, other := src, tgt
				if _, ok := probeAttrNames[probe]; !ok {
					probe, other = tgt, src
				}
				if other != hub {
					return Entry{}, false
				}
				return Entry{
					Source: probe,
					Target: hub,
					Desc: Descriptor{
						Kind: KindAttributeQuery,
						AttributeQuery: &AttributeQueryDescriptor{
							Table:        "microarray_annotation",
							SourceAttr:   probeAttrNames[probe],
							TargetAttr:   ensemblAttrNames[hub],
							OrganismAttr: "taxon_id",
						},
					},
				}, true
			},
		}
		if err := c.RegisterFamily(family); err != nil {
			return fmt.Errorf("register array family: %w", err)
		}
	}

	// UniProt 批量翻译族：约 30 个成员命名空间经批量服务到达 uniprot
	// 表总是从 uniprot 侧构建（上传全集取自物种的全部 accession），
	// 请求方向相反时由 Resolver 反转
	listFamily := Family{
		Name:    "uniprot-list",
		Hub:     domain.NSUniProt,
		Members: listServiceNames,
		Build: func(src, tgt domain.Namespace) (Entry, bool) {
			// hub 参与时表总是从 uniprot 侧构建（上传全集可得），
			// 请求方向相反时由 Resolver 反转
			if src == domain.NSUniProt || tgt == domain.NSUniProt {
				member := src
				if member == domain.NSUniProt {
					member = tgt
				}
				svcName, ok := listServiceNames[member]
				if !ok {
					return Entry{}, false
				}
				return Entry{
					Source: domain.NSUniProt,
					Target: member,
					Desc: Descriptor{
						Kind: KindRemoteList,
						RemoteList: &RemoteListDescriptor{
							URL:       cfg.ListURL,
							FromParam: "ACC",
							ToParam:   svcName,
							SeedNS:    domain.NSUniProt,
							ChunkSize: cfg.ListChunkSize,
						},
					},
				}, true
			}
			// 成员↔成员：直接翻译，上传全集取自源命名空间；
			// 全集不可得时加载器降级为空表
			fromName, okFrom := listServiceNames[src]
			toName, okTo := listServiceNames[tgt]
			if !okFrom || !okTo {
				return Entry{}, false
			}
			return Entry{
				Source: src,
				Target: tgt,
				Desc: Descriptor{
					Kind: KindRemoteList,
					RemoteList: &RemoteListDescriptor{
						URL:       cfg.ListURL,
						FromParam: fromName,
						ToParam:   toName,
						SeedNS:    src,
						ChunkSize: cfg.ListChunkSize,
					},
				},
			}, true
		},
	}
	if err := c.RegisterFamily(listFamily); err != nil {
		return fmt.Errorf("register uniprot list family: %w", err)
	}

	return nil
}
