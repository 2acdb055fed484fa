//go:build !linux

package job

// becomeSubreaper is unsupported here; orphaned stages go to init.
func becomeSubreaper() error {
	return nil
}
