//go:build unix

package fs

import (
	"os"
	"syscall"

	"github.com/justyntemme/razorlist/internal/model"
)

// localCloudStatus reports whether a file inside a cloud-synced folder is
// hydrated. Dehydrated placeholders have a size but no allocated blocks.
func localCloudStatus(path string) (model.SyncStatus, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return model.SyncUnknown, err
	}
	if info.IsDir() {
		return model.SyncInSync, nil
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return model.SyncUnknown, nil
	}
	if info.Size() > 0 && st.Blocks == 0 {
		return model.SyncCloudOnly, nil
	}
	return model.SyncInSync, nil
}
