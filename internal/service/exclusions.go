// Package service implements the per-request counting orchestration: resolve
// the content, apply exclusion rules, run the de-duplication decision, and
// fan the counted view out across the aggregate buckets.
package service

import (
	"net/netip"
	"strings"
)

// Visitor describes the requester being evaluated for exclusion. The crawler
// flag is supplied by the caller; detection heuristics live outside this
// service.
type Visitor struct {
	UserID    int64 // 0 for guests
	Roles     []string
	IP        string
	IsCrawler bool
}

// ExclusionRule decides whether a visitor's views are excluded from counting.
// Rules must fail open: a rule that cannot evaluate its configuration returns
// false rather than silently excluding everyone.
type ExclusionRule interface {
	Excludes(v Visitor) bool
}

// Exclusions composes rules into the single predicate the counting path
// consults once per request.
type Exclusions struct {
	rules []ExclusionRule
}

// NewExclusions builds the composed predicate.
func NewExclusions(rules ...ExclusionRule) Exclusions {
	return Exclusions{rules: rules}
}

// ShouldCount reports whether the visitor's view may be counted.
func (e Exclusions) ShouldCount(v Visitor) bool {
	for _, rule := range e.rules {
		if rule.Excludes(v) {
			return false
		}
	}
	return true
}

// GroupRule excludes whole visitor classes and, optionally, specific roles.
type GroupRule struct {
	Guests   bool
	LoggedIn bool
	Crawlers bool
	Roles    []string
}

// Excludes implements ExclusionRule.
func (r GroupRule) Excludes(v Visitor) bool {
	if r.Crawlers && v.IsCrawler {
		return true
	}
	if v.UserID == 0 {
		return r.Guests && !v.IsCrawler
	}
	if r.LoggedIn {
		return true
	}
	for _, excluded := range r.Roles {
		for _, role := range v.Roles {
			if role == excluded {
				return true
			}
		}
	}
	return false
}

// IPRule excludes requests from configured addresses. Patterns are exact
// addresses, CIDR prefixes, or IPv4 wildcard-octet forms like "10.0.*.*".
// Invalid patterns are dropped at construction and never match.
type IPRule struct {
	prefixes []netip.Prefix
	exact    []netip.Addr
	wildcard [][4]string
}

// NewIPRule parses the patterns, silently discarding any it cannot parse.
func NewIPRule(patterns []string) IPRule {
	var rule IPRule
	for _, raw := range patterns {
		pattern := strings.TrimSpace(raw)
		if pattern == "" {
			continue
		}
		if strings.Contains(pattern, "/") {
			if prefix, err := netip.ParsePrefix(pattern); err == nil {
				rule.prefixes = append(rule.prefixes, prefix)
			}
			continue
		}
		if strings.Contains(pattern, "*") {
			if octets, ok := parseWildcard(pattern); ok {
				rule.wildcard = append(rule.wildcard, octets)
			}
			continue
		}
		if addr, err := netip.ParseAddr(pattern); err == nil {
			rule.exact = append(rule.exact, addr)
		}
	}
	return rule
}

// Excludes implements ExclusionRule. An unparseable visitor IP never matches.
func (r IPRule) Excludes(v Visitor) bool {
	addr, err := netip.ParseAddr(v.IP)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, exact := range r.exact {
		if addr == exact.Unmap() {
			return true
		}
	}
	for _, prefix := range r.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	if addr.Is4() && len(r.wildcard) > 0 {
		octets := strings.Split(addr.String(), ".")
		for _, pattern := range r.wildcard {
			if matchOctets(pattern, octets) {
				return true
			}
		}
	}
	return false
}

// parseWildcard validates a dotted-quad pattern where each octet is either a
// literal 0-255 or "*".
func parseWildcard(pattern string) ([4]string, bool) {
	parts := strings.Split(pattern, ".")
	if len(parts) != 4 {
		return [4]string{}, false
	}

	var octets [4]string
	for i, part := range parts {
		if part == "*" {
			octets[i] = "*"
			continue
		}
		if !validOctet(part) {
			return [4]string{}, false
		}
		octets[i] = part
	}
	return octets, true
}

func matchOctets(pattern [4]string, octets []string) bool {
	if len(octets) != 4 {
		return false
	}
	for i, want := range pattern {
		if want != "*" && want != octets[i] {
			return false
		}
	}
	return true
}

func validOctet(s string) bool {
	if len(s) == 0 || len(s) > 3 {
		return false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
		n = n*10 + int(c-'0')
	}
	return n <= 255
}
