package cloud

import (
	"fmt"
	"slices"
	"strings"

	"github.com/raoulx24/bsu-backup/internal/config"
)

// CanonicalRegions have a well-known FCU endpoint.
var CanonicalRegions = []string{
	"us-east-2",
	"eu-west-2",
	"ap-northeast-1",
	"us-west-1",
	"cloudgouv-eu-west-1",
}

// ResolveEndpoint returns the explicit endpoint when set, otherwise the
// endpoint of a canonical region. Any other combination is a configuration
// error; no endpoint is ever guessed.
func ResolveEndpoint(region, endpoint string) (string, error) {
	if region == "" {
		return "", fmt.Errorf("%w: region is required", config.ErrInvalid)
	}
	if endpoint != "" {
		return endpoint, nil
	}
	if !slices.Contains(CanonicalRegions, region) {
		return "", fmt.Errorf("%w: an endpoint is required when the region is not in: %s",
			config.ErrInvalid, strings.Join(CanonicalRegions, ", "))
	}
	return fmt.Sprintf("https://fcu.%s.outscale.com", region), nil
}
