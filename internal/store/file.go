package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// FileSessionStore keeps sessions as "username,moves " lines in one text file.
// Save truncates and rewrites the whole file; a crash mid-write can lose sessions.
type FileSessionStore struct {
	path   string
	logger *zap.Logger
}

func NewFileSessionStore(path string, logger *zap.Logger) *FileSessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSessionStore{path: path, logger: logger}
}

func (s *FileSessionStore) Load(ctx context.Context) (*Sessions, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Sessions{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open sessions: %v", ErrStore, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read sessions: %v", ErrStore, err)
	}

	sessions, bad, duplicates := ParseLines(lines)
	for _, line := range bad {
		s.logger.Warn("session_line_skipped", zap.String("path", s.path), zap.String("line", line))
	}
	if duplicates > 0 {
		s.logger.Warn("session_duplicates_collapsed", zap.String("path", s.path), zap.Int("count", duplicates))
	}
	return sessions, nil
}

func (s *FileSessionStore) Save(ctx context.Context, sessions *Sessions) error {
	var b strings.Builder
	if sessions != nil {
		for _, sess := range sessions.All() {
			b.WriteString(FormatLine(sess))
			b.WriteByte('\n')
		}
	}
	if err := os.WriteFile(s.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("%w: write sessions: %v", ErrStore, err)
	}
	return nil
}

// FileCursor stores the last processed message id as plain text.
type FileCursor struct {
	path string
	seed int64
}

// NewFileCursor returns a cursor that reads seed while the file does not exist yet.
func NewFileCursor(path string, seed int64) *FileCursor {
	return &FileCursor{path: path, seed: seed}
}

func (c *FileCursor) Read(ctx context.Context) (int64, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return c.seed, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read cursor: %v", ErrStore, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return c.seed, nil
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse cursor %q: %v", ErrStore, text, err)
	}
	return id, nil
}

func (c *FileCursor) Write(ctx context.Context, id int64) error {
	if err := os.WriteFile(c.path, []byte(strconv.FormatInt(id, 10)), 0o644); err != nil {
		return fmt.Errorf("%w: write cursor: %v", ErrStore, err)
	}
	return nil
}
