package domain

import (
	"fmt"
	"strconv"
)

// Namespace 标识符命名空间（UniProt、Entrez、Ensembl 等标识符词汇表）
// 命名空间集合是开放的：目录注册时可以引入新的命名空间
type Namespace string

// 已知命名空间常量
const (
	NSUniProt       Namespace = "uniprot"
	NSUniProtEntry  Namespace = "uniprot-entry"
	NSUniProtSec    Namespace = "uniprot-sec"
	NSSwissProt     Namespace = "swissprot"
	NSTrembl        Namespace = "trembl"
	NSIPI           Namespace = "ipi"
	NSEMBL          Namespace = "embl"
	NSGeneSymbol    Namespace = "genesymbol"
	NSGeneSymbolSyn Namespace = "genesymbol-syn"
	NSEntrez        Namespace = "entrez"
	NSHGNC          Namespace = "hgnc"
	NSMGI           Namespace = "mgi"
	NSEnsG          Namespace = "ensg"
	NSEnsT          Namespace = "enst"
	NSEnsP          Namespace = "ensp"
	NSRefSeqP       Namespace = "refseqp"
	NSRefSeqN       Namespace = "refseqn"
	NSMirBase       Namespace = "mirbase"
	NSMirPre        Namespace = "mir-pre"
	NSMirMat        Namespace = "mir-mat"
	NSPDB           Namespace = "pdb"
	NSGeneOntology  Namespace = "go"
	NSGOName        Namespace = "go-name"
	NSProteinName   Namespace = "protein-name"
	NSPubChem       Namespace = "pubchem"
	NSChEBI         Namespace = "chebi"
	NSKEGG          Namespace = "kegg"
	NSAffyProbe     Namespace = "affy"
	NSIlluminaProbe Namespace = "illumina"
	NSAgilentProbe  Namespace = "agilent"
)

// Organism NCBI Taxonomy ID（正整数），0 表示与物种无关的表
type Organism int

// NotOrganismSpecific 与物种无关的表（如本体映射）使用的哨兵值
const NotOrganismSpecific Organism = 0

// 常用物种
const (
	OrganismHuman Organism = 9606
	OrganismMouse Organism = 10090
	OrganismRat   Organism = 10116
)

// Valid 物种是否合法（正整数或哨兵值）
func (o Organism) Valid() bool {
	return o >= 0
}

func (o Organism) String() string {
	if o == NotOrganismSpecific {
		return "NOT_ORGANISM_SPECIFIC"
	}
	return strconv.Itoa(int(o))
}

// ParseOrganism 解析物种参数（空字符串视为与物种无关）
func ParseOrganism(s string) (Organism, error) {
	if s == "" || s == "NOT_ORGANISM_SPECIFIC" {
		return NotOrganismSpecific, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid organism %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid organism %d: taxon id must be positive", n)
	}
	return Organism(n), nil
}
