package repository

import (
	"context"
	"database/sql"
	"fmt"

	"biomapper/internal/catalog"
	"biomapper/internal/domain"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresAttributeRepository 双属性查询仓库：对注释仓库的一张表
// 取两列，按行位置配对（微阵列探针注释等）
type PostgresAttributeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAttributeRepository 创建属性查询仓库
func NewPostgresAttributeRepository(db *sql.DB, logger *zap.Logger) *PostgresAttributeRepository {
	return &PostgresAttributeRepository{
		db:     db,
		logger: logger,
	}
}

// FetchPairs 执行双属性查询
// 描述符字段来自注册时校验过的静态目录，标识符仍然统一转义
func (r *PostgresAttributeRepository) FetchPairs(ctx context.Context, desc *catalog.AttributeQueryDescriptor, organism domain.Organism) ([]domain.Pair, error) {
	query := fmt.Sprintf(
		`SELECT %s, %s FROM %s`,
		pq.QuoteIdentifier(desc.SourceAttr),
		pq.QuoteIdentifier(desc.TargetAttr),
		pq.QuoteIdentifier(desc.Table),
	)

	var (
		rows *sql.Rows
		err  error
	)
	if desc.OrganismAttr != "" && organism != domain.NotOrganismSpecific {
		query += fmt.Sprintf(` WHERE %s = $1`, pq.QuoteIdentifier(desc.OrganismAttr))
		rows, err = r.db.QueryContext(ctx, query, int(organism))
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", desc.Table, err)
	}
	defer rows.Close()

	var pairs []domain.Pair
	for rows.Next() {
		var source, target sql.NullString
		if err := rows.Scan(&source, &target); err != nil {
			return nil, fmt.Errorf("failed to scan attribute pair: %w", err)
		}
		if !source.Valid || !target.Valid || source.String == "" || target.String == "" {
			continue
		}
		pairs = append(pairs, domain.Pair{Source: source.String, Target: target.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attribute pairs: %w", err)
	}

	r.logger.Debug("Fetched attribute pairs",
		zap.String("table", desc.Table),
		zap.String("source_attr", desc.SourceAttr),
		zap.String("target_attr", desc.TargetAttr),
		zap.Int("pair_count", len(pairs)),
	)
	return pairs, nil
}
