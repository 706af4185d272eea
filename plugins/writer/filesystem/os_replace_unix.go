//go:build !windows

package filesystem

import "os"

func osReplace(tmpPath, dest string) error { return os.Rename(tmpPath, dest) }

// syncDir fsync 父目录以持久化 rename。
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
