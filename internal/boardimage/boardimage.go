package boardimage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TBarmak/Chess-Twitter-Bot/internal/platform"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrTransport is the platform transport error; image service failures share it.
var ErrTransport = platform.ErrTransport

// Image is a transient board picture on disk. Callers Remove it once posted.
type Image struct {
	Path string
}

func (i *Image) Remove() error {
	if i == nil || i.Path == "" {
		return nil
	}
	if err := os.Remove(i.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Source produces an image for a FEN position.
type Source interface {
	Fetch(ctx context.Context, fen string) (*Image, error)
}

// writeTemp stores data as board-<uuid><ext> under dir (the OS temp dir when empty).
func writeTemp(dir, ext string, data []byte) (*Image, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "board-"+uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write board image: %w", err)
	}
	return &Image{Path: path}, nil
}

// Fallback tries each source in order and returns the first image produced.
func Fallback(logger *zap.Logger, sources ...Source) Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fallback{sources: sources, logger: logger}
}

type fallback struct {
	sources []Source
	logger  *zap.Logger
}

func (f *fallback) Fetch(ctx context.Context, fen string) (*Image, error) {
	var errs []error
	for i, src := range f.sources {
		img, err := src.Fetch(ctx, fen)
		if err == nil {
			return img, nil
		}
		f.logger.Warn("board_image_source_failed", zap.Int("source", i), zap.String("fen", fen), zap.Error(err))
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("no board image source configured")
	}
	return nil, errors.Join(errs...)
}
