package recall

import (
	"os"
	"path/filepath"

	"github.com/sgx-labs/gitmemory/internal/memtypes"
)

// readFileSnapshot reads path (relative to root) into a bounded FileSnapshot.
// Files over byteCap are elided rather than truncated silently mid-content,
// so a caller always knows a reference existed even when its body didn't fit.
func readFileSnapshot(root, path string, byteCap int64) memtypes.FileSnapshot {
	full := filepath.Join(root, filepath.Clean("/"+path))

	info, err := os.Stat(full)
	if err != nil {
		return memtypes.FileSnapshot{Path: path, Elided: true}
	}
	if info.Size() > byteCap {
		return memtypes.FileSnapshot{Path: path, Size: info.Size(), Elided: true}
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return memtypes.FileSnapshot{Path: path, Size: info.Size(), Elided: true}
	}
	return memtypes.FileSnapshot{Path: path, Content: string(data), Size: info.Size()}
}
