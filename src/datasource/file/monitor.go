// monitor.go
package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileMonitor 监听单个数据文件的变更
type FileMonitor struct {
	target  string
	watcher *fsnotify.Watcher
	lastMod time.Time
	mu      sync.Mutex
}

// NewFileMonitor 监听文件所在目录, 编辑器替换文件时也能收到事件
func NewFileMonitor(path string) (*FileMonitor, error) {
	target, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	m := &FileMonitor{
		target:  target,
		watcher: watcher,
	}
	if info, err := os.Stat(target); err == nil {
		m.lastMod = info.ModTime()
	}
	return m, nil
}

// Watch 阻塞直到 ctx 结束, 文件变化时调用 handler
// watcher 报告的错误(如事件队列溢出)交给 onError 后继续监听, onError 可为 nil
func (m *FileMonitor) Watch(ctx context.Context, handler func(string), onError func(error)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if m.changed(event) {
				handler(m.target)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}

func (m *FileMonitor) changed(event fsnotify.Event) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != m.target {
		return false
	}

	// 文件被移走或删除, 需要让上层感知加载失败
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return true
	}
	// Chmod 只在修改时间前进时才算变化
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Chmod) {
		return false
	}

	info, err := os.Stat(name)
	if err != nil {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !info.ModTime().After(m.lastMod) && !event.Has(fsnotify.Create) {
		return false
	}
	m.lastMod = info.ModTime()
	return true
}

// Close 释放 watcher
func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}
