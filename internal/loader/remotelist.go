package loader

import (
	"bytes"
	"context"
	"strings"
	"time"

	"biomapper/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	// DefaultChunkSize 每次 POST 的 ID 数上限
	DefaultChunkSize = 10000
	// chunkAttempts 单个分块允许的尝试次数，之后视为永久失败
	chunkAttempts = 3
)

// ListClient 批量 ID 翻译服务客户端
// 协议：POST 表单 {from, to, format: "tab", uploadQuery: 空格连接的 ID}，
// 正常响应是带表头行的 TSV；HTML 或空响应视为失败
type ListClient struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewListClient 创建批量翻译客户端
func NewListClient(timeout time.Duration, logger *zap.Logger) *ListClient {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "text/plain")

	return &ListClient{
		http:   client,
		logger: logger,
	}
}

// Translate 把完整 ID 列表按固定大小分块依次（绝不并行）提交
// 单个分块重试 chunkAttempts 次后放弃，保留其它分块的部分结果
func (c *ListClient) Translate(ctx context.Context, url, from, to string, ids []string, chunkSize int) []domain.Pair {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var pairs []domain.Pair
	failedChunks := 0

	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		chunkPairs, ok := c.translateChunk(ctx, url, from, to, chunk)
		if !ok {
			failedChunks++
			c.logger.Warn("List service chunk permanently failed",
				zap.String("url", url),
				zap.String("from", from),
				zap.String("to", to),
				zap.Int("chunk_start", start),
				zap.Int("chunk_size", len(chunk)),
			)
			continue
		}
		pairs = append(pairs, chunkPairs...)
	}

	if failedChunks > 0 {
		c.logger.Warn("List service translation incomplete",
			zap.String("url", url),
			zap.Int("failed_chunks", failedChunks),
			zap.Int("pair_count", len(pairs)),
		)
	}

	return pairs
}

func (c *ListClient) translateChunk(ctx context.Context, url, from, to string, chunk []string) ([]domain.Pair, bool) {
	for attempt := 1; attempt <= chunkAttempts; attempt++ {
		resp, err := c.http.R().
			SetContext(ctx).
			SetFormData(map[string]string{
				"from":        from,
				"to":          to,
				"format":      "tab",
				"uploadQuery": strings.Join(chunk, " "),
			}).
			Post(url)

		if err != nil {
			c.logger.Debug("List service request failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		body := resp.Body()
		if len(bytes.TrimSpace(body)) == 0 || looksLikeHTML(body) {
			c.logger.Debug("List service returned empty or HTML response",
				zap.Int("attempt", attempt),
				zap.Int("status_code", resp.StatusCode()),
			)
			continue
		}

		return parseTabResponse(body), true
	}
	return nil, false
}

// looksLikeHTML 嗅探 HTML 标记开头的响应体（服务端错误页）
func looksLikeHTML(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}
	lower := strings.ToLower(string(trimmed[:min(64, len(trimmed))]))
	return strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html") || lower[0] == '<'
}

// parseTabResponse 解析 TSV 响应，跳过表头行
func parseTabResponse(body []byte) []domain.Pair {
	lines := strings.Split(string(body), "\n")
	if len(lines) < 2 {
		return nil
	}

	pairs := make([]domain.Pair, 0, len(lines)-1)
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
			continue
		}
		pairs = append(pairs, domain.Pair{Source: fields[0], Target: fields[1]})
	}
	return pairs
}
