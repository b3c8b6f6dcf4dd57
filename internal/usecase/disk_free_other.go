//go:build !linux && !darwin

package usecase

// diskFreeBytes has no statfs equivalent here; the sweep leaves the disk
// free gauge unset.
func diskFreeBytes(string) (int64, error) {
	return 0, errDiskFreeUnsupported
}
