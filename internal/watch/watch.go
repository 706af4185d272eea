package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"rptsafe/internal/diag"
)

// 监视模式：输入变化后（去抖）重新执行一次完整运行。
// 单 goroutine 事件循环；run 在循环内同步执行，期间到达的事件由 fsnotify 缓冲，结束后合并为下一轮。

const defaultDebounce = 200 * time.Millisecond

// Options 监视参数。
type Options struct {
	// Debounce: 最后一次事件后的静默时长；<=0 取 200ms。
	Debounce time.Duration
	// Ignore: 这些路径（及其子路径）上的事件不触发重跑，通常为输出目录。
	Ignore []string
	Logger *diag.Logger
}

// Watcher 监视输入根并在变化时调用 run。
type Watcher struct {
	roots    []string
	run      func(ctx context.Context) error
	debounce time.Duration
	ignore   []string
	logger   *diag.Logger

	// files: 作为单文件 root 显式列出的路径；其父目录被监视，但仅这些文件名触发。
	files map[string]bool
	// dirs: 目录 root（递归监视）。
	dirs []string
}

// New 构造 Watcher；roots 不得包含 "-"。
func New(roots []string, run func(ctx context.Context) error, opts Options) (*Watcher, error) {
	if len(roots) == 0 {
		return nil, errors.New("watch: no roots")
	}
	if run == nil {
		return nil, errors.New("watch: nil run func")
	}
	w := &Watcher{
		run:      run,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		files:    map[string]bool{},
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	if w.logger == nil {
		w.logger = diag.NewNop()
	}
	for _, p := range opts.Ignore {
		if strings.TrimSpace(p) == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("watch: ignore %q: %w", p, err)
		}
		w.ignore = append(w.ignore, abs)
	}
	for _, r := range roots {
		if strings.TrimSpace(r) == "-" {
			return nil, errors.New("watch: stdin cannot be watched")
		}
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("watch: root %q: %w", r, err)
		}
		fi, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("watch: root %q: %w", r, err)
		}
		if fi.IsDir() {
			w.dirs = append(w.dirs, abs)
		} else {
			w.files[abs] = true
		}
		w.roots = append(w.roots, abs)
	}
	return w, nil
}

// Run 注册监视、执行首轮，然后在每次（去抖后）变化时重跑，直至 ctx 取消。
// 单轮失败仅记录，不终止监视；ctx 取消时返回 nil。
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer func() { _ = fw.Close() }()

	for _, d := range w.dirs {
		if err := w.addTree(fw, d); err != nil {
			return err
		}
	}
	for f := range w.files {
		if err := fw.Add(filepath.Dir(f)); err != nil {
			return fmt.Errorf("watch: add %s: %w", filepath.Dir(f), err)
		}
	}

	round := 0
	w.once(ctx, &round)

	// 初始为停止状态；首个相关事件启动
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			pending = false
			w.once(ctx, &round)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				// 新建子目录需补充监视
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() && w.underDir(ev.Name) {
					if err := w.addTree(fw, ev.Name); err != nil {
						w.logger.Warn("watch", string(diag.CodeIO), "add created dir failed", map[string]string{"path": ev.Name, "err": err.Error()})
					}
				}
			}
			if !w.relevant(ev) {
				continue
			}
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch", string(diag.CodeIO), "watcher error", map[string]string{"err": err.Error()})
		}
	}
}

func (w *Watcher) once(ctx context.Context, round *int) {
	*round++
	n := strconv.Itoa(*round)
	timer := w.logger.StartWithKV("watch", "round", "", "", map[string]string{"round": n})
	if err := w.run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		code := diag.Classify(err)
		w.logger.ErrorWithKV("watch", string(code), "round failed", timer.Since(), "", "", map[string]string{"round": n, "err": err.Error()})
		diag.IncOp("watch", "round", "error")
		return
	}
	diag.IncOp("watch", "round", "ok")
	timer.Finish("round", int64(*round))
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(p) {
			return filepath.SkipDir
		}
		if err := fw.Add(p); err != nil {
			return fmt.Errorf("watch: add %s: %w", p, err)
		}
		return nil
	})
}

// relevant: 写入/新建/删除/改名均可能改变计数；Chmod 忽略。
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Clean(ev.Name)
	if w.ignored(name) {
		return false
	}
	if w.files[name] {
		return true
	}
	return w.underDir(name)
}

func (w *Watcher) underDir(p string) bool {
	for _, d := range w.dirs {
		if within(p, d) {
			return true
		}
	}
	return false
}

func (w *Watcher) ignored(p string) bool {
	for _, ig := range w.ignore {
		if within(p, ig) {
			return true
		}
	}
	return false
}

func within(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
