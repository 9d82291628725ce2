package exclusion

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
)

// MaxDomainLength is the longest domain the exclusion list accepts
const MaxDomainLength = 255

// ErrInvalidDomain is wrapped by every validation failure
var ErrInvalidDomain = errors.New("invalid domain")

// Rejection is a candidate dropped before write-back
type Rejection struct {
	Domain string
	Err    error
}

// ValidateDomain checks a single normalized domain against the upstream rules.
// The platform rejects a whole update when any entry is malformed.
func ValidateDomain(domain string) error {
	switch {
	case domain == "":
		return fmt.Errorf("%w: empty", ErrInvalidDomain)
	case len(domain) > MaxDomainLength:
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidDomain, MaxDomainLength)
	case strings.HasPrefix(domain, "."), strings.HasPrefix(domain, "-"):
		return fmt.Errorf("%w: starts with %q", ErrInvalidDomain, domain[:1])
	}

	for _, r := range domain {
		if unicode.IsSpace(r) {
			return fmt.Errorf("%w: contains whitespace", ErrInvalidDomain)
		}
		if unicode.Is(unicode.Cyrillic, r) {
			return fmt.Errorf("%w: contains cyrillic characters", ErrInvalidDomain)
		}
	}
	return nil
}

// FilterValid splits domains into valid ones and rejections, logging each rejection
func FilterValid(domains []string) ([]string, []Rejection) {
	valid := make([]string, 0, len(domains))
	var rejected []Rejection

	for _, d := range domains {
		if err := ValidateDomain(d); err != nil {
			log.Warn().Err(err).Str("domain", d).Msg("Dropping malformed domain from exclusion update")
			rejected = append(rejected, Rejection{Domain: d, Err: err})
			continue
		}
		valid = append(valid, d)
	}
	return valid, rejected
}
