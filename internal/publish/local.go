package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type LocalPublisher struct {
	root string
}

func NewLocalPublisher(root string) *LocalPublisher {
	return &LocalPublisher{root: root}
}

func (l *LocalPublisher) String() string {
	return l.root
}

func (l *LocalPublisher) Publish(ctx context.Context, localPath, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest := filepath.Join(l.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", filepath.Dir(dest), err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	tmp := dest + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to copy %s: %w", localPath, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", dest, err)
	}
	return dest, nil
}
