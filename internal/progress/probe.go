package progress

import (
	"io/fs"
	"path/filepath"
)

// Probe returns the total size in bytes of all regular files below path.
//
// Entries that cannot be read count as zero and a missing path yields 0. Probe never fails,
// so it is safe to call while another process is still writing into path.
func Probe(path string) int64 {
	var total int64

	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtree or vanished entry: skip it, keep walking
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		total += info.Size()

		return nil
	})

	return total
}
