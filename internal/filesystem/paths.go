package filesystem

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// IsWithinDir reports whether target resolves to root or a path below it.
// Both paths are cleaned; symlinks are not followed.
func IsWithinDir(root, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(target))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// DirSize sums the sizes of regular files under dir. Unreadable entries are skipped.
func DirSize(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			// files can vanish while a job renames its output
			return nil
		}
		if d.Type().IsRegular() {
			if info, infoErr := d.Info(); infoErr == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size, err
}
