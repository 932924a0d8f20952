package probe

import (
	"fmt"
	"os"

	"github.com/hamed0406/pgdiag/internal/domain"
)

// ValidateCertPath checks that the root certificate bundle exists locally when
// the TLS mode relies on one. An empty path is accepted: the driver then
// falls back to its own defaults.
func ValidateCertPath(mode domain.TLSMode, path string) error {
	if !mode.RequiresCertificate() || path == "" {
		return nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return &CertPathError{Path: path, Err: err}
	}
	if !fi.Mode().IsRegular() {
		return &CertPathError{Path: path, Err: fmt.Errorf("%s is not a regular file", path)}
	}
	return nil
}
