//go:build !linux

package listener

// SO_REUSEPORT is Linux/BSD-specific; on platforms where x/sys/unix
// doesn't expose it uniformly this is a silent no-op so Config.ReusePort
// stays a hint rather than a hard requirement.
func setReusePort(fd int) error {
	return nil
}
