//go:build unix

package tail

import (
	"fmt"
	"os"
	"syscall"
)

// Fingerprint identifies the file behind info as "device:inode".
func Fingerprint(info os.FileInfo) string {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%d:%d", uint64(st.Dev), uint64(st.Ino))
}
