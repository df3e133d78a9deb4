package domain

import (
	"fmt"
	"strings"
)

// ConfigError reports a vendor section that is absent or missing required
// fields. It fails the whole vendor request, unlike per-target fetch failures
// which are rendered into record content.
type ConfigError struct {
	Vendor  string
	Missing []string
}

func (e *ConfigError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("%s is not configured in settings", e.Vendor)
	}
	return fmt.Sprintf("%s settings missing required fields: %s", e.Vendor, strings.Join(e.Missing, ", "))
}

// NewConfigError builds a ConfigError for the given vendor and missing fields.
func NewConfigError(vendor string, missing ...string) *ConfigError {
	return &ConfigError{Vendor: vendor, Missing: missing}
}
