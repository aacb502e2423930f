//go:build !unix

package tail

import "os"

// Fingerprint returns "" where no stable file identity is available, so
// rotation is detected by truncation alone.
func Fingerprint(info os.FileInfo) string {
	return ""
}
