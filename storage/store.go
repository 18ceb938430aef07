// Package storage 把引导稿和设置保存在 SQLite 中
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lisuiheng/zenflow-go/guide"
)

// Store 每条记录都由单条语句写入，失败时不会留下半条记录
type Store struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

// Open 打开(必要时创建)数据库文件并初始化表结构
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("storage path is required")
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	log.Debug("Storage opened", "path", path)
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS guides (
    id TEXT PRIMARY KEY,
    topic TEXT NOT NULL,
    language TEXT NOT NULL,
    style TEXT NOT NULL,
    duration INTEGER NOT NULL,
    model TEXT NOT NULL,
    content TEXT NOT NULL,
    usage_tokens INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    created_at TEXT NOT NULL,
    audios TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_guides_created ON guides(created_at);
CREATE TABLE IF NOT EXISTS settings (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    language TEXT NOT NULL,
    base_url TEXT NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

const guideColumns = `id, topic, language, style, duration, model, content, usage_tokens, status, created_at, audios`

// List 按创建时间倒序返回所有引导稿
func (s *Store) List(ctx context.Context) ([]guide.Guide, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+guideColumns+` FROM guides ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list guides: %w", err)
	}
	defer rows.Close()

	var guides []guide.Guide
	for rows.Next() {
		g, err := scanGuide(rows)
		if err != nil {
			return nil, err
		}
		guides = append(guides, g)
	}
	return guides, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (guide.Guide, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+guideColumns+` FROM guides WHERE id = ?`, id)
	g, err := scanGuide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return guide.Guide{}, fmt.Errorf("%w: %s", guide.ErrNotFound, id)
	}
	return g, err
}

func (s *Store) Create(ctx context.Context, g guide.Guide) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = s.clock()
	}
	audios, err := encodeAudios(g.Audios)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO guides(`+guideColumns+`) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Topic, g.Language, string(g.Style), g.Duration, g.Model, g.Content,
		g.UsageTokens, string(g.Status), formatTime(g.CreatedAt), audios)
	if err != nil {
		return fmt.Errorf("create guide %s: %w", g.ID, err)
	}
	return nil
}

// Update 整条覆盖，最后一次写入生效
func (s *Store) Update(ctx context.Context, g guide.Guide) error {
	audios, err := encodeAudios(g.Audios)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE guides SET topic = ?, language = ?, style = ?, duration = ?, model = ?, content = ?,
		 usage_tokens = ?, status = ?, audios = ? WHERE id = ?`,
		g.Topic, g.Language, string(g.Style), g.Duration, g.Model, g.Content,
		g.UsageTokens, string(g.Status), audios, g.ID)
	if err != nil {
		return fmt.Errorf("update guide %s: %w", g.ID, err)
	}
	return expectOne(res, g.ID)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM guides WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete guide %s: %w", id, err)
	}
	return expectOne(res, id)
}

// GetSettings 尚未保存过设置时返回默认值
func (s *Store) GetSettings(ctx context.Context) (guide.Settings, error) {
	var language, baseURL string
	err := s.db.QueryRowContext(ctx, `SELECT language, base_url FROM settings WHERE id = 1`).Scan(&language, &baseURL)
	if errors.Is(err, sql.ErrNoRows) {
		return guide.DefaultSettings(), nil
	}
	if err != nil {
		return guide.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return guide.Settings{Language: guide.Language(language), BaseURL: baseURL}, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings guide.Settings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(id, language, base_url) VALUES(1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET language = excluded.language, base_url = excluded.base_url`,
		string(settings.Language), settings.BaseURL)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGuide(row scanner) (guide.Guide, error) {
	var (
		g       guide.Guide
		style   string
		status  string
		created string
		audios  string
	)
	err := row.Scan(&g.ID, &g.Topic, &g.Language, &style, &g.Duration, &g.Model, &g.Content,
		&g.UsageTokens, &status, &created, &audios)
	if err != nil {
		return guide.Guide{}, err
	}
	g.Style = guide.MeditationStyle(style)
	g.Status = guide.Status(status)
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		g.CreatedAt = ts
	}
	if err := json.Unmarshal([]byte(audios), &g.Audios); err != nil {
		return guide.Guide{}, fmt.Errorf("decode audios of guide %s: %w", g.ID, err)
	}
	return g, nil
}

func encodeAudios(audios []guide.AudioMetadata) (string, error) {
	if audios == nil {
		audios = []guide.AudioMetadata{}
	}
	data, err := json.Marshal(audios)
	if err != nil {
		return "", fmt.Errorf("encode audios: %w", err)
	}
	return string(data), nil
}

// formatTime 固定宽度，保证按字符串排序即按时间排序
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", guide.ErrNotFound, id)
	}
	return nil
}
