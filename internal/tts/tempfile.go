package tts

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/skylark-tts/skylark/internal/logger"
)

// TempFS 抽象临时文件的创建与删除，测试中可注入计数替身。
type TempFS interface {
	// Create 在 dir（空串表示系统临时目录）下创建名为 name 的空文件，
	// 返回完整路径。
	Create(dir, name string) (string, error)
	Remove(path string) error
}

type osTempFS struct{}

func (osTempFS) Create(dir, name string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", err
	}
	f.Close()
	return path, nil
}

func (osTempFS) Remove(path string) error { return os.Remove(path) }

// TempFiles 管理限定作用域的临时文件。
// 每次 WithFile 创建独立文件，并发调用之间不共享任何状态。
type TempFiles struct {
	dir string
	fs  TempFS
}

// NewTempFiles 创建临时文件管理器。dir 为空时使用系统临时目录。
func NewTempFiles(dir string) *TempFiles {
	return &TempFiles{dir: dir, fs: osTempFS{}}
}

// NewTempFilesFS 使用指定文件系统创建管理器，供测试注入。
func NewTempFilesFS(dir string, fs TempFS) *TempFiles {
	return &TempFiles{dir: dir, fs: fs}
}

// WithFile 创建唯一命名的临时文件并调用 body，body 返回后删除文件，
// 无论成功、失败还是 panic。删除失败只记录日志，
// 绝不覆盖 body 的返回结果。
func (t *TempFiles) WithFile(prefix, suffix string, body func(path string) error) error {
	name := prefix + uuid.NewString() + suffix
	path, err := t.fs.Create(t.dir, name)
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}

	defer func() {
		if rmErr := t.fs.Remove(path); rmErr != nil {
			logger.Warnf("[tts] 删除临时文件 %s 失败: %v", path, rmErr)
		}
	}()

	return body(path)
}
