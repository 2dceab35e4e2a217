package repository

import (
	"context"
	"database/sql"
	"fmt"

	"biomapper/internal/domain"

	"go.uber.org/zap"
)

// UniProtRepository UniProt 数据仓库访问接口
type UniProtRepository interface {
	// AllAccessions 物种的全部 accession（批量翻译上传的 ID 全集）
	AllAccessions(ctx context.Context, organism domain.Organism) ([]string, error)
	// ReferenceProteome 物种参考蛋白质组中的 accession 集合
	ReferenceProteome(ctx context.Context, organism domain.Organism) (domain.IDSet, error)
	// ArchivedGeneSymbols 已删除/废弃 accession 的归档基因符号
	ArchivedGeneSymbols(ctx context.Context, accession string) ([]string, error)
}

// PostgresUniProtRepository 基于 PostgreSQL 仓库的实现
type PostgresUniProtRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresUniProtRepository 创建 UniProt 仓库
func NewPostgresUniProtRepository(db *sql.DB, logger *zap.Logger) *PostgresUniProtRepository {
	return &PostgresUniProtRepository{
		db:     db,
		logger: logger,
	}
}

// AllAccessions 物种的全部 accession
func (r *PostgresUniProtRepository) AllAccessions(ctx context.Context, organism domain.Organism) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT accession FROM uniprot_proteome WHERE taxon_id = $1`,
		int(organism),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query accessions: %w", err)
	}
	defer rows.Close()

	var accessions []string
	for rows.Next() {
		var ac string
		if err := rows.Scan(&ac); err != nil {
			return nil, fmt.Errorf("failed to scan accession: %w", err)
		}
		if ac != "" {
			accessions = append(accessions, ac)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accessions: %w", err)
	}
	return accessions, nil
}

// AllIDs 命名空间的 ID 全集（加载器上传批量翻译请求时使用）
// 目前只有 UniProt 系命名空间有可得的全集
func (r *PostgresUniProtRepository) AllIDs(ctx context.Context, ns domain.Namespace, organism domain.Organism) ([]string, error) {
	switch ns {
	case domain.NSUniProt:
		return r.AllAccessions(ctx, organism)
	case domain.NSSwissProt:
		return r.reviewedAccessions(ctx, organism, true)
	case domain.NSTrembl:
		return r.reviewedAccessions(ctx, organism, false)
	default:
		return nil, fmt.Errorf("no id universe available for namespace %s", ns)
	}
}

func (r *PostgresUniProtRepository) reviewedAccessions(ctx context.Context, organism domain.Organism, reviewed bool) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT accession FROM uniprot_proteome WHERE taxon_id = $1 AND reviewed = $2`,
		int(organism), reviewed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query accessions: %w", err)
	}
	defer rows.Close()

	var accessions []string
	for rows.Next() {
		var ac string
		if err := rows.Scan(&ac); err != nil {
			return nil, fmt.Errorf("failed to scan accession: %w", err)
		}
		accessions = append(accessions, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accessions: %w", err)
	}
	return accessions, nil
}

// ReferenceProteome 参考蛋白质组 accession 集合
func (r *PostgresUniProtRepository) ReferenceProteome(ctx context.Context, organism domain.Organism) (domain.IDSet, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT accession FROM uniprot_proteome WHERE taxon_id = $1 AND in_reference_proteome = TRUE`,
		int(organism),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reference proteome: %w", err)
	}
	defer rows.Close()

	proteome := make(domain.IDSet)
	for rows.Next() {
		var ac string
		if err := rows.Scan(&ac); err != nil {
			return nil, fmt.Errorf("failed to scan accession: %w", err)
		}
		if ac != "" {
			proteome.Add(ac)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reference proteome: %w", err)
	}
	return proteome, nil
}

// ArchivedGeneSymbols 归档记录中的基因符号
func (r *PostgresUniProtRepository) ArchivedGeneSymbols(ctx context.Context, accession string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT gene_symbol FROM uniprot_archive WHERE accession = $1`,
		accession,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var gs sql.NullString
		if err := rows.Scan(&gs); err != nil {
			return nil, fmt.Errorf("failed to scan gene symbol: %w", err)
		}
		if gs.Valid && gs.String != "" {
			symbols = append(symbols, gs.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate archive: %w", err)
	}
	return symbols, nil
}
