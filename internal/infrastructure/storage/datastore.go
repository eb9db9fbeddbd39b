package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gomitas-bot/internal/pkg/common"

	"go.uber.org/zap"
)

// ErrClosed 儲存已關閉
var ErrClosed = errors.New("data store closed")

// job 寫入佇列中的工作
type job struct {
	fn     func() error
	result chan error
}

// DataStore 單一 JSON 檔案；所有修改經由單一寫入協程依序執行
type DataStore[T any] struct {
	path        string
	defaultData T
	jobs        chan job
	done        chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// NewDataStore 創建檔案儲存；檔案不存在時以預設資料建立
func NewDataStore[T any](path string, defaultData T) (*DataStore[T], error) {
	s := &DataStore[T]{
		path:        path,
		defaultData: defaultData,
		jobs:        make(chan job),
		done:        make(chan struct{}),
	}
	if err := s.init(); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.worker()
	return s, nil
}

func (s *DataStore[T]) init() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat %s: %w", s.path, err)
	}
	return s.Write(s.defaultData)
}

// worker 依序執行寫入工作
func (s *DataStore[T]) worker() {
	defer s.wg.Done()
	for {
		select {
		case j := <-s.jobs:
			j.result <- s.run(j.fn)
		case <-s.done:
			return
		}
	}
}

// run 執行單一工作，panic 轉為錯誤
func (s *DataStore[T]) run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			common.LogError("Data store job panicked",
				zap.String("path", s.path),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("data store job panicked: %v", r)
		}
	}()
	return fn()
}

// Queue 將修改排入寫入協程並等待完成
func (s *DataStore[T]) Queue(ctx context.Context, fn func() error) error {
	j := job{fn: fn, result: make(chan error, 1)}

	select {
	case s.jobs <- j:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// 已開始執行的工作一定會完成，等待結果以確保回傳前已持久化
	return <-j.result
}

// Read 讀取目前資料
func (s *DataStore[T]) Read() (T, error) {
	var data T
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return data, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	if len(raw) == 0 {
		return data, nil
	}
	if err := common.ParseJSONBytes(raw, &data); err != nil {
		return data, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return data, nil
}

// Write 先寫暫存檔再改名，避免寫到一半的檔案
func (s *DataStore[T]) Write(data T) error {
	raw, err := common.MarshalIndent(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", s.path, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

// Path 檔案路徑
func (s *DataStore[T]) Path() string {
	return s.path
}

// Close 停止寫入協程
func (s *DataStore[T]) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}
