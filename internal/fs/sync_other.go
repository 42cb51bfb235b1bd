//go:build !unix

package fs

import (
	"os"

	"github.com/justyntemme/razorlist/internal/model"
)

func localCloudStatus(path string) (model.SyncStatus, error) {
	if _, err := os.Lstat(path); err != nil {
		return model.SyncUnknown, err
	}
	return model.SyncInSync, nil
}
