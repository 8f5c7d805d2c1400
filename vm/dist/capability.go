package dist

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/quill/vm"
)

var (
	ErrCapabilityDenied  = errors.New("dist: capability denied")
	ErrCapabilityMissing = errors.New("dist: capability not provided")
)

// CapabilityPolicy controls which host capabilities a loaded bundle may
// use. A nil AllowedCapabilities means "allow all".
type CapabilityPolicy struct {
	AllowedCapabilities map[string]bool // nil = allow all
	DeniedCapabilities  map[string]bool
}

// NewPermissivePolicy creates a policy that allows all capabilities.
func NewPermissivePolicy() *CapabilityPolicy {
	return &CapabilityPolicy{}
}

// NewRestrictedPolicy creates a policy that only allows the specified
// capabilities.
func NewRestrictedPolicy(allowed []string) *CapabilityPolicy {
	m := make(map[string]bool, len(allowed))
	for _, c := range allowed {
		m[c] = true
	}
	return &CapabilityPolicy{AllowedCapabilities: m}
}

// NewPolicy builds a policy from allow and deny lists as found in
// configuration. An empty allow list allows everything not denied.
func NewPolicy(allow, deny []string) *CapabilityPolicy {
	p := NewPermissivePolicy()
	if len(allow) > 0 {
		p = NewRestrictedPolicy(allow)
	}
	for _, c := range deny {
		p.Deny(c)
	}
	return p
}

// Check verifies that every required capability is allowed by this
// policy. Deny entries win over allow entries.
func (p *CapabilityPolicy) Check(required []string) error {
	for _, c := range required {
		if p.DeniedCapabilities != nil && p.DeniedCapabilities[c] {
			return fmt.Errorf("%w: %q is explicitly denied", ErrCapabilityDenied, c)
		}
		if p.AllowedCapabilities != nil && !p.AllowedCapabilities[c] {
			return fmt.Errorf("%w: %q is not allowed", ErrCapabilityDenied, c)
		}
	}
	return nil
}

// Admit checks a bundle against the policy, then checks that env provides
// every capability the bundle needs. The list is derived from the script
// itself; the declared list only adds to it.
func (p *CapabilityPolicy) Admit(b *Bundle, env *vm.Environment) error {
	s, err := DecodeScript(&b.Script)
	if err != nil {
		return err
	}
	required := mergeSorted(RequiredCapabilities(s), b.Capabilities)
	if err := p.Check(required); err != nil {
		return err
	}
	var missing []string
	for _, c := range required {
		if !env.Provides(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrCapabilityMissing, strings.Join(missing, ", "))
	}
	return nil
}

// Deny adds a capability to the deny list.
func (p *CapabilityPolicy) Deny(c string) {
	if p.DeniedCapabilities == nil {
		p.DeniedCapabilities = make(map[string]bool)
	}
	p.DeniedCapabilities[c] = true
}

func mergeSorted(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, c := range list {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}
