package loader

import (
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Rows 上游数据源的行迭代器，每行已按分隔符切分
type Rows interface {
	Next() ([]string, bool)
	Err() error
	Close() error
}

// RowSource 打开路径或 URL 的行流，透明解压 gzip/zip，支持 xlsx 工作表
type RowSource interface {
	OpenRows(ctx context.Context, locator, sep string) (Rows, error)
}

// HTTPRowSource 默认实现：本地文件直接打开，http(s) 经 resty 下载
type HTTPRowSource struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewRowSource 创建默认行源
func NewRowSource(timeout time.Duration, logger *zap.Logger) *HTTPRowSource {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	return &HTTPRowSource{
		http:   client,
		logger: logger,
	}
}

func (s *HTTPRowSource) OpenRows(ctx context.Context, locator, sep string) (Rows, error) {
	if sep == "" {
		sep = "\t"
	}

	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		resp, err := s.http.R().SetContext(ctx).Get(locator)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", locator, err)
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("failed to download %s: status %d", locator, resp.StatusCode())
		}
		return openDecoded(locator, bytes.NewReader(resp.Body()), int64(len(resp.Body())), sep, nil)
	}

	f, err := os.Open(locator)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", locator, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", locator, err)
	}
	return openDecoded(locator, f, info.Size(), sep, f)
}

// readerAtSized zip 需要 ReaderAt + 大小
type readerAtSized interface {
	io.Reader
	io.ReaderAt
}

// openDecoded 按扩展名选择解码方式（gzip/zip/xlsx/纯文本）
func openDecoded(locator string, r readerAtSized, size int64, sep string, closer io.Closer) (Rows, error) {
	lower := strings.ToLower(locator)

	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		return openExcelRows(r, closer)

	case strings.HasSuffix(lower, ".gz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			if closer != nil {
				closer.Close()
			}
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", locator, err)
		}
		return newLineRows(gz, sep, multiCloser{gz, closer}), nil

	case strings.HasSuffix(lower, ".zip"):
		zr, err := zip.NewReader(r, size)
		if err != nil {
			if closer != nil {
				closer.Close()
			}
			return nil, fmt.Errorf("failed to open zip archive %s: %w", locator, err)
		}
		if len(zr.File) == 0 {
			if closer != nil {
				closer.Close()
			}
			return nil, fmt.Errorf("zip archive %s is empty", locator)
		}
		// 约定：取归档中的第一个文件
		inner, err := zr.File[0].Open()
		if err != nil {
			if closer != nil {
				closer.Close()
			}
			return nil, fmt.Errorf("failed to open zip entry in %s: %w", locator, err)
		}
		return newLineRows(inner, sep, multiCloser{inner, closer}), nil

	default:
		return newLineRows(r, sep, closer), nil
	}
}

// lineRows 文本行迭代器
type lineRows struct {
	scanner *bufio.Scanner
	sep     string
	closer  io.Closer
}

func newLineRows(r io.Reader, sep string, closer io.Closer) *lineRows {
	scanner := bufio.NewScanner(r)
	// 大型转储文件的行可能很长
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &lineRows{scanner: scanner, sep: sep, closer: closer}
}

func (l *lineRows) Next() ([]string, bool) {
	for l.scanner.Scan() {
		line := strings.TrimRight(l.scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		return strings.Split(line, l.sep), true
	}
	return nil, false
}

func (l *lineRows) Err() error {
	return l.scanner.Err()
}

func (l *lineRows) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// excelRows xlsx 第一个工作表的行
type excelRows struct {
	rows   [][]string
	pos    int
	closer io.Closer
}

func openExcelRows(r io.Reader, closer io.Closer) (Rows, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("failed to read xlsx sheet %s: %w", sheets[0], err)
	}
	return &excelRows{rows: rows, closer: closer}, nil
}

func (e *excelRows) Next() ([]string, bool) {
	for e.pos < len(e.rows) {
		row := e.rows[e.pos]
		e.pos++
		if len(row) == 0 {
			continue
		}
		return row, true
	}
	return nil, false
}

func (e *excelRows) Err() error {
	return nil
}

func (e *excelRows) Close() error {
	if e.closer != nil {
		return e.closer.Close()
	}
	return nil
}

// multiCloser 依次关闭多个资源（忽略 nil）
type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
