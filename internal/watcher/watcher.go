// Package watcher はファイルの変更を監視し、登録されたリスナーに通知する
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce は連続した変更イベントをまとめる待ち時間
const DefaultDebounce = 100 * time.Millisecond

// ChangeListener はファイルの変更通知を受け取る
type ChangeListener interface {
	OnChanged(ctx context.Context, path string)
}

// ListenerFunc は関数を ChangeListener として使うためのアダプタ
type ListenerFunc func(ctx context.Context, path string)

// OnChanged は f(ctx, path) を呼び出す
func (f ListenerFunc) OnChanged(ctx context.Context, path string) {
	f(ctx, path)
}

// Watcher はファイルの変更を監視する
// エディタによる置き換え（rename / create）にも追従できるよう、ファイルではなく親ディレクトリを監視する
type Watcher struct {
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	mu        sync.Mutex
	listeners map[string][]ChangeListener
	dirs      map[string]struct{}
	timers    map[string]*time.Timer
}

// Option はWatcherのオプション
type Option func(*Watcher)

// WithDebounce は変更イベントをまとめる待ち時間を設定する
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// New は新しいWatcherを作成する
func New(logger *slog.Logger, opts ...Option) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		fsw:       fsw,
		logger:    logger,
		debounce:  DefaultDebounce,
		listeners: make(map[string][]ChangeListener),
		dirs:      make(map[string]struct{}),
		timers:    make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Add はファイルの変更リスナーを登録する
func (w *Watcher) Add(path string, cl ChangeListener) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Dir(abs)
	if _, ok := w.dirs[dir]; !ok {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("listener registration for file %s failed: %w", path, err)
		}
		w.dirs[dir] = struct{}{}
	}

	w.listeners[abs] = append(w.listeners[abs], cl)
	return nil
}

// Start はイベントの監視を開始する
// ctx がキャンセルされるか Close が呼ばれるまで監視を続ける
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Debug("starting watching files for changes")
	go w.run(ctx)
}

// Close は監視を停止する
func (w *Watcher) Close() error {
	w.logger.Debug("stopping watching files for changes")

	w.mu.Lock()
	for name, t := range w.timers {
		t.Stop()
		delete(w.timers, name)
	}
	w.mu.Unlock()

	return w.fsw.Close()
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				w.logger.Debug("file watcher closed")
				return
			}
			if evt.Has(fsnotify.Write) || evt.Has(fsnotify.Create) || evt.Has(fsnotify.Rename) {
				w.schedule(ctx, filepath.Clean(evt.Name))
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.logger.Debug("file watcher error channel closed")
				return
			}
			w.logger.Warn("file watcher error received", slog.String("error", err.Error()))
		}
	}
}

// schedule は待ち時間の後にリスナーを呼び出す
// 待ち時間内に同じファイルのイベントが続いた場合は1回にまとめる
func (w *Watcher) schedule(ctx context.Context, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.listeners[name]; !ok {
		return
	}

	if t, ok := w.timers[name]; ok {
		t.Reset(w.debounce)
		return
	}

	w.timers[name] = time.AfterFunc(w.debounce, func() {
		w.fire(ctx, name)
	})
}

func (w *Watcher) fire(ctx context.Context, name string) {
	w.mu.Lock()
	delete(w.timers, name)
	listeners := append([]ChangeListener(nil), w.listeners[name]...)
	w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	w.logger.Info("file changed", slog.String("path", name))
	for _, l := range listeners {
		l.OnChanged(ctx, name)
	}
}
