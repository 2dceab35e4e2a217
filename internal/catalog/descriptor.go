package catalog

import (
	"fmt"
	"time"

	"biomapper/internal/domain"
)

// LoaderKind 加载策略种类（封闭但可扩展的集合，按 Kind 字符串分发）
type LoaderKind string

const (
	KindFile           LoaderKind = "file"
	KindRemoteList     LoaderKind = "remote-list"
	KindOntology       LoaderKind = "ontology"
	KindAttributeQuery LoaderKind = "attribute-query"
	KindBulkDump       LoaderKind = "bulk-dump"
)

// FileDescriptor 分隔文本源：本地路径或 URL，按列号切分
type FileDescriptor struct {
	Locator     string // 路径或 URL
	Separator   string // 默认 "\t"
	SourceCol   int
	TargetCol   int
	HeaderRows  int
	OrganismCol int // -1 表示无物种列（不过滤）
}

// RemoteListDescriptor 批量 ID 翻译服务：分块 POST 完整 ID 列表
type RemoteListDescriptor struct {
	URL       string
	FromParam string           // 服务端源命名空间名
	ToParam   string           // 服务端目标命名空间名
	SeedNS    domain.Namespace // 上传的 ID 全集取自哪个命名空间
	ChunkSize int              // 默认 10000
}

// OntologyDescriptor 全局（与物种无关的）id↔本体术语对流
type OntologyDescriptor struct {
	Locator   string
	Separator string
}

// AttributeQueryDescriptor 对结构化生物数据仓库做双属性查询，按行位置配对
type AttributeQueryDescriptor struct {
	Table        string
	SourceAttr   string
	TargetAttr   string
	OrganismAttr string // 空表示不过滤物种
}

// BulkDumpDescriptor 单个超大转储文件，一次扫描填充多张表
// 每行的 marker 列决定该行属于哪个命名空间对；未知 marker 跳过
type BulkDumpDescriptor struct {
	Locator     string
	Separator   string
	MarkerCol   int
	SourceCol   int
	TargetCol   int
	OrganismCol int // -1 表示无物种列
	// Markers：marker 值 → 目标命名空间（源命名空间取 Entry.Source）
	Markers map[string]domain.Namespace
}

// Descriptor 资源描述符：标签化变体，恰好填充 Kind 对应的那个变体
// 在目录注册时校验，运行期不再做类型检查
type Descriptor struct {
	Kind     LoaderKind
	Lifetime time.Duration // 0 表示使用默认存活时长

	File           *FileDescriptor
	RemoteList     *RemoteListDescriptor
	Ontology       *OntologyDescriptor
	AttributeQuery *AttributeQueryDescriptor
	BulkDump       *BulkDumpDescriptor
}

// Validate 注册时校验：Kind 与变体一一对应，必填字段齐全
func (d Descriptor) Validate() error {
	variants := 0
	if d.File != nil {
		variants++
	}
	if d.RemoteList != nil {
		variants++
	}
	if d.Ontology != nil {
		variants++
	}
	if d.AttributeQuery != nil {
		variants++
	}
	if d.BulkDump != nil {
		variants++
	}
	if variants != 1 {
		return fmt.Errorf("descriptor must carry exactly one variant, got %d", variants)
	}

	switch d.Kind {
	case KindFile:
		if d.File == nil {
			return fmt.Errorf("kind %s requires File variant", d.Kind)
		}
		if d.File.Locator == "" {
			return fmt.Errorf("file descriptor requires locator")
		}
		if d.File.SourceCol < 0 || d.File.TargetCol < 0 {
			return fmt.Errorf("file descriptor requires non-negative column indices")
		}
	case KindRemoteList:
		if d.RemoteList == nil {
			return fmt.Errorf("kind %s requires RemoteList variant", d.Kind)
		}
		if d.RemoteList.URL == "" || d.RemoteList.FromParam == "" || d.RemoteList.ToParam == "" {
			return fmt.Errorf("remote-list descriptor requires url, from and to params")
		}
		if d.RemoteList.SeedNS == "" {
			return fmt.Errorf("remote-list descriptor requires seed namespace")
		}
	case KindOntology:
		if d.Ontology == nil {
			return fmt.Errorf("kind %s requires Ontology variant", d.Kind)
		}
		if d.Ontology.Locator == "" {
			return fmt.Errorf("ontology descriptor requires locator")
		}
	case KindAttributeQuery:
		if d.AttributeQuery == nil {
			return fmt.Errorf("kind %s requires AttributeQuery variant", d.Kind)
		}
		if d.AttributeQuery.Table == "" || d.AttributeQuery.SourceAttr == "" || d.AttributeQuery.TargetAttr == "" {
			return fmt.Errorf("attribute-query descriptor requires table and both attributes")
		}
	case KindBulkDump:
		if d.BulkDump == nil {
			return fmt.Errorf("kind %s requires BulkDump variant", d.Kind)
		}
		if d.BulkDump.Locator == "" {
			return fmt.Errorf("bulk-dump descriptor requires locator")
		}
		if len(d.BulkDump.Markers) == 0 {
			return fmt.Errorf("bulk-dump descriptor requires at least one marker")
		}
	default:
		return fmt.Errorf("unknown loader kind %q", d.Kind)
	}
	return nil
}
