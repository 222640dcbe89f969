package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"streamqos/internal/server/storage"
	"streamqos/pkg/model"
)

type Store struct {
	db   *sql.DB
	ins  *sql.Stmt
	path string
}

var _ storage.Store = (*Store)(nil)

func NewStore(path string) (*Store, error) {
	// DuckDB 是嵌入式列存数据库，按流做时间序列聚合查询比较合适；path 为空时使用内存库。
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("打开 DuckDB 失败：%w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	ddl := `
CREATE TABLE IF NOT EXISTS qos_samples (
	timestamp     TIMESTAMP,
	agent         VARCHAR,
	stream        VARCHAR,
	fresh         BOOLEAN,
	jitter_ms     DOUBLE,
	delay_ms      DOUBLE,
	latency_ms    DOUBLE,
	bitrate_mbps  DOUBLE,
	packet_loss   DOUBLE,
	total_packets UBIGINT,
	lost_packets  UBIGINT
);`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("建表失败：%w", err)
	}

	stmt, err := s.db.Prepare(`INSERT INTO qos_samples (` + storage.Columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("准备插入语句失败：%w", err)
	}
	s.ins = stmt
	return nil
}

func (s *Store) Insert(ctx context.Context, sample *model.Sample) error {
	if sample == nil {
		return fmt.Errorf("sample 为空")
	}
	if _, err := s.ins.ExecContext(ctx, storage.InsertArgs(sample)...); err != nil {
		return fmt.Errorf("插入失败：%w", err)
	}
	return nil
}

func (s *Store) QueryByStream(ctx context.Context, stream string, limit int) ([]model.Sample, error) {
	return s.query(ctx, `
SELECT `+storage.Columns+`
FROM qos_samples
WHERE stream = ?
ORDER BY timestamp DESC
LIMIT ?;
`, stream, normLimit(limit))
}

func (s *Store) QueryByAgent(ctx context.Context, agent string, limit int) ([]model.Sample, error) {
	return s.query(ctx, `
SELECT `+storage.Columns+`
FROM qos_samples
WHERE agent = ?
ORDER BY timestamp DESC
LIMIT ?;
`, agent, normLimit(limit))
}

// Latest 用 DuckDB 的 QUALIFY 直接过滤窗口函数结果。
func (s *Store) Latest(ctx context.Context, limit int) ([]model.Sample, error) {
	return s.query(ctx, `
SELECT `+storage.Columns+`
FROM qos_samples
QUALIFY ROW_NUMBER() OVER (PARTITION BY stream ORDER BY timestamp DESC) = 1
ORDER BY stream
LIMIT ?;
`, normLimit(limit))
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]model.Sample, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询失败：%w", err)
	}
	return storage.ScanSamples(rows)
}

func normLimit(limit int) int {
	if limit <= 0 {
		return storage.DefaultLimit
	}
	return limit
}

func (s *Store) Close() error {
	var firstErr error
	if s.ins != nil {
		if err := s.ins.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
