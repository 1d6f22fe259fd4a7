package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// LocalStore implements Store on the local filesystem
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a local store rooted at basePath
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Error().Err(err).Str("path", basePath).Msg("failed to create storage directory")
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	log.Info().Str("path", basePath).Msg("local storage initialized")
	return &LocalStore{basePath: basePath}, nil
}

// Append writes content to the end of the file at path, creating it if needed.
// The file is synced before returning so the on-disk length always matches the
// caller's byte accounting.
func (ls *LocalStore) Append(ctx context.Context, path string, content io.Reader) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	fullPath := filepath.Join(ls.basePath, path)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to create directory")
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to open file for append")
		return 0, fmt.Errorf("failed to open file for append: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, content)
	if err != nil {
		return written, fmt.Errorf("failed to append content: %w", err)
	}

	if err := file.Sync(); err != nil {
		return written, fmt.Errorf("failed to sync file: %w", err)
	}

	log.Debug().Str("path", path).Int64("bytes_written", written).Msg("chunk appended")
	return written, nil
}

// Truncate cuts the file at path back to size bytes
func (ls *LocalStore) Truncate(ctx context.Context, path string, size int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fullPath := filepath.Join(ls.basePath, path)
	if err := os.Truncate(fullPath, size); err != nil {
		log.Error().Err(err).Str("path", path).Int64("size", size).Msg("failed to truncate file")
		return fmt.Errorf("failed to truncate file: %w", err)
	}
	return nil
}

// WriteExclusive creates the file at path with create-only semantics. A file
// that already exists is left untouched and reported as success, since it
// implies a retried creation.
func (ls *LocalStore) WriteExclusive(ctx context.Context, path string, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fullPath := filepath.Join(ls.basePath, path)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			log.Debug().Str("path", path).Msg("marker already exists, leaving untouched")
			return nil
		}
		log.Error().Err(err).Str("path", path).Msg("failed to create marker file")
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	return nil
}

// ReadFile returns the full contents of the file at path
func (ls *LocalStore) ReadFile(ctx context.Context, path string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fullPath := filepath.Join(ls.basePath, path)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		log.Error().Err(err).Str("path", path).Msg("failed to read file")
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Rename atomically moves a file within the store
func (ls *LocalStore) Rename(ctx context.Context, from, to string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fromPath := filepath.Join(ls.basePath, from)
	toPath := filepath.Join(ls.basePath, to)

	if err := os.MkdirAll(filepath.Dir(toPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.Rename(fromPath, toPath); err != nil {
		log.Error().Err(err).Str("from", from).Str("to", to).Msg("failed to rename file")
		return fmt.Errorf("failed to rename file: %w", err)
	}

	log.Info().Str("from", from).Str("to", to).Msg("file renamed")
	return nil
}

// Delete removes the file at path; a missing file is not an error
func (ls *LocalStore) Delete(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fullPath := filepath.Join(ls.basePath, path)
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", path).Msg("file already deleted or does not exist")
			return nil
		}
		log.Error().Err(err).Str("path", path).Msg("failed to delete file")
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists checks if a file exists at path
func (ls *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	_, err := os.Stat(filepath.Join(ls.basePath, path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		log.Error().Err(err).Str("path", path).Msg("failed to check file existence")
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return true, nil
}

// Stat returns size and modification time of the file at path
func (ls *LocalStore) Stat(ctx context.Context, path string) (FileInfo, error) {
	select {
	case <-ctx.Done():
		return FileInfo{}, ctx.Err()
	default:
	}

	info, err := os.Stat(filepath.Join(ls.basePath, path))
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("file not found: %s", path)
		}
		log.Error().Err(err).Str("path", path).Msg("failed to stat file")
		return FileInfo{}, fmt.Errorf("failed to stat file: %w", err)
	}

	return FileInfo{Size: info.Size(), ModTime: info.ModTime()}, nil
}

// List returns the paths of all files under prefix, relative to the store root
func (ls *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	searchPath := filepath.Join(ls.basePath, prefix)
	var paths []string

	err := filepath.Walk(searchPath, func(path string, info os.FileInfo, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if os.IsNotExist(err) || os.IsPermission(err) {
				return filepath.SkipDir
			}
			return err
		}

		if !info.IsDir() {
			relPath, err := filepath.Rel(ls.basePath, path)
			if err != nil {
				return err
			}
			paths = append(paths, relPath)
		}

		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("prefix", prefix).Msg("failed to list files")
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return paths, nil
}
