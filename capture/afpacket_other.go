//go:build !linux

package capture

// OpenLive is only implemented on linux.
func OpenLive(cfg LiveConfig) (Source, error) {
	return nil, ErrUnsupported
}
