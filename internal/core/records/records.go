package records

import (
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"fsindex/internal/model"
)

// Generate captures a change record for path, stamping the device the
// path lives on. A path that cannot be stat'ed yields no record.
func Generate(path string) (model.ChangeRecord, bool) {
	path = filepath.Clean(path)

	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return model.ChangeRecord{}, false
	}

	return model.ChangeRecord{
		Path:   path,
		Kind:   model.KindCreate,
		Device: uint64(st.Dev),
		At:     time.Now(),
	}, true
}
