package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startWatch(t *testing.T, roots []string, opts Options, run func(context.Context) error) (context.CancelFunc, <-chan error) {
	t.Helper()
	w, err := New(roots, run, opts)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return cancel, done
}

func stop(t *testing.T, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch 未在取消后退出")
	}
}

func TestRerunOnWrite(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("1 2 3\n"), 0o644))

	var n atomic.Int32
	runs := make(chan struct{}, 16)
	cancel, done := startWatch(t, []string{dir}, Options{Debounce: 20 * time.Millisecond}, func(context.Context) error {
		n.Add(1)
		runs <- struct{}{}
		return nil
	})
	defer stop(t, cancel, done)

	<-runs // 首轮：此时监视已注册
	require.NoError(t, os.WriteFile(f, []byte("1 2 3\n4 5 6\n"), 0o644))
	select {
	case <-runs:
	case <-time.After(5 * time.Second):
		t.Fatal("写入后未重跑")
	}
	require.GreaterOrEqual(t, n.Load(), int32(2))
}

func TestSingleFileRootFiltersSiblings(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("1 2\n"), 0o644))

	runs := make(chan struct{}, 16)
	cancel, done := startWatch(t, []string{f}, Options{Debounce: 10 * time.Millisecond}, func(context.Context) error {
		runs <- struct{}{}
		return nil
	})
	defer stop(t, cancel, done)

	<-runs
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("9 9\n"), 0o644))
	select {
	case <-runs:
		t.Fatal("同目录其他文件不应触发")
	case <-time.After(150 * time.Millisecond):
	}
	require.NoError(t, os.WriteFile(f, []byte("1 3\n"), 0o644))
	select {
	case <-runs:
	case <-time.After(5 * time.Second):
		t.Fatal("目标文件写入后未重跑")
	}
}

func TestIgnoredDir(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(out, 0o755))

	runs := make(chan struct{}, 16)
	cancel, done := startWatch(t, []string{dir}, Options{Debounce: 10 * time.Millisecond, Ignore: []string{out}}, func(context.Context) error {
		runs <- struct{}{}
		return nil
	})
	defer stop(t, cancel, done)

	<-runs
	require.NoError(t, os.WriteFile(filepath.Join(out, "summary.json"), []byte("{}"), 0o644))
	select {
	case <-runs:
		t.Fatal("忽略目录内写入不应触发")
	case <-time.After(150 * time.Millisecond):
	}
}

// 单轮失败不终止监视
func TestRoundErrorKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("x\n"), 0o644))

	runs := make(chan struct{}, 16)
	cancel, done := startWatch(t, []string{dir}, Options{Debounce: 10 * time.Millisecond}, func(context.Context) error {
		runs <- struct{}{}
		return errors.New("boom")
	})
	defer stop(t, cancel, done)

	<-runs
	require.NoError(t, os.WriteFile(f, []byte("y\n"), 0o644))
	select {
	case <-runs:
	case <-time.After(5 * time.Second):
		t.Fatal("失败后未继续监视")
	}
}

func TestNewRejects(t *testing.T) {
	noop := func(context.Context) error { return nil }
	_, err := New(nil, noop, Options{})
	require.Error(t, err)
	_, err = New([]string{"-"}, noop, Options{})
	require.Error(t, err)
	_, err = New([]string{filepath.Join(t.TempDir(), "missing")}, noop, Options{})
	require.Error(t, err)
	_, err = New([]string{t.TempDir()}, nil, Options{})
	require.Error(t, err)
}

func TestWithin(t *testing.T) {
	base := filepath.Join(string(filepath.Separator), "a", "b")
	require.True(t, within(base, base))
	require.True(t, within(filepath.Join(base, "c"), base))
	require.False(t, within(filepath.Join(string(filepath.Separator), "a", "bc"), base))
	require.False(t, within(filepath.Join(string(filepath.Separator), "a"), base))
}
