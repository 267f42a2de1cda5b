package bridge

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/aretw0/revisit/pkg/domain"
)

// OriginPolicy decides which senders may deliver inbound envelopes.
type OriginPolicy struct {
	allowed map[string]struct{}
	any     bool
}

// NewOriginPolicy trusts exactly the given origins (scheme://host[:port]).
func NewOriginPolicy(origins ...string) (OriginPolicy, error) {
	p := OriginPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if o == "*" {
			p.any = true
			continue
		}
		norm, err := NormalizeOrigin(o)
		if err != nil {
			return OriginPolicy{}, err
		}
		p.allowed[norm] = struct{}{}
	}
	return p, nil
}

// Verify returns domain.ErrUntrustedOrigin when origin is not trusted.
func (p OriginPolicy) Verify(origin string) error {
	if p.any {
		return nil
	}
	norm, err := NormalizeOrigin(origin)
	if err != nil {
		return fmt.Errorf("%w: %q", domain.ErrUntrustedOrigin, origin)
	}
	if _, ok := p.allowed[norm]; !ok {
		return fmt.Errorf("%w: %q", domain.ErrUntrustedOrigin, origin)
	}
	return nil
}

// NormalizeOrigin reduces a URL to its lowercase scheme://host[:port] form.
func NormalizeOrigin(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid origin %q: scheme and host are required", raw)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}
