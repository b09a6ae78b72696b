// Package filepersistence 以每房间一个 JSON 文件的形式持久化笔划日志。
// 文件格式与持久化记录约定一致：有序的 {points, color, size, authorId} 数组。
package filepersistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// FileBoardRepository 是 BoardRepository 接口的文件系统实现
type FileBoardRepository struct {
	dir string // 存放 <roomID>.json 的目录
}

// NewFileBoardRepository 创建实例并确保目录存在。
func NewFileBoardRepository(dir string) (*FileBoardRepository, error) {
	if dir == "" {
		return nil, fmt.Errorf("file: boards directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file: create boards directory %s: %w", dir, err)
	}
	return &FileBoardRepository{dir: dir}, nil
}

func (r *FileBoardRepository) boardPath(roomID string) string {
	// roomID 来自客户端，只取文件名部分，防止路径穿越
	return filepath.Join(r.dir, filepath.Base(roomID)+".json")
}

// Save 将笔划序列写入 <roomID>.json，整体覆盖。
// 先写临时文件再重命名，写入中途失败不会留下半截的日志。
func (r *FileBoardRepository) Save(ctx context.Context, roomID string, strokes []domain.Stroke) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strokes == nil {
		strokes = []domain.Stroke{}
	}
	data, err := json.Marshal(strokes)
	if err != nil {
		return fmt.Errorf("file: marshal strokes for room %s: %w", roomID, err)
	}

	path := r.boardPath(roomID)
	tmp, err := os.CreateTemp(r.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("file: create temp file for room %s: %w", roomID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file: write board file for room %s: %w", roomID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: close board file for room %s: %w", roomID, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: rename board file for room %s: %w", roomID, err)
	}
	return nil
}

// Load 读取房间的笔划序列；文件不存在映射为 ErrBoardNotFound。
func (r *FileBoardRepository) Load(ctx context.Context, roomID string) ([]domain.Stroke, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.boardPath(roomID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, repository.ErrBoardNotFound
		}
		return nil, fmt.Errorf("file: read board file for room %s: %w", roomID, err)
	}
	var strokes []domain.Stroke
	if err := json.Unmarshal(data, &strokes); err != nil {
		return nil, fmt.Errorf("file: unmarshal board file for room %s: %w", roomID, err)
	}
	return strokes, nil
}
