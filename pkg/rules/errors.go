package rules

import "fmt"

// ChecksumMismatchError reports an update whose recomputed checksum
// differs from the advertised one. The update must be rejected and the
// previously applied version kept.
type ChecksumMismatchError struct {
	Version    string
	Advertised string
	Computed   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("rule update %q failed integrity check: advertised checksum %s, computed %s",
		e.Version, e.Advertised, e.Computed)
}
