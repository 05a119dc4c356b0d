// Package auth implements AuthPolicy (spec §4.H): two pure predicates,
// domain match and whitelist glob match, called synchronously by
// IntakeCoordinator and the read endpoints. Glob, not regex, is used for
// whitelist patterns to keep the operator-facing surface safe (spec §9).
package auth

import (
	"fmt"
	"strings"

	"github.com/lumenfeed/ingest/internal/apierr"
	"github.com/lumenfeed/ingest/internal/models"
	"github.com/lumenfeed/ingest/internal/services/urlnorm"
)

// Policy implements the two predicates of AuthPolicy.
type Policy struct{}

// New creates a new Policy. It carries no state — both predicates are pure.
func New() *Policy { return &Policy{} }

// CheckDomain reports DOMAIN_MISMATCH unless host(url) equals the
// publisher's domain or is a subdomain of it.
func (p *Policy) CheckDomain(normalizedURL string, publisher *models.Publisher) error {
	host, err := urlnorm.Host(normalizedURL)
	if err != nil {
		return err
	}
	if !urlnorm.MatchesDomain(host, publisher.Domain) {
		return apierr.Auth(apierr.CodeDomainMismatch, fmt.Sprintf("url host %q does not match publisher domain %q", host, publisher.Domain))
	}
	return nil
}

// CheckWhitelist reports NOT_WHITELISTED unless the publisher's whitelist
// is empty (accept any URL within the domain) or at least one pattern
// matches normalizedURL.
func (p *Policy) CheckWhitelist(normalizedURL string, publisher *models.Publisher) error {
	patterns := publisher.Config.WhitelistedBlogURLs
	if len(patterns) == 0 {
		return nil
	}
	for _, pattern := range patterns {
		if globMatch(pattern, normalizedURL) {
			return nil
		}
	}
	return apierr.Auth(apierr.CodeNotWhitelisted, fmt.Sprintf("url %q does not match any whitelisted pattern", normalizedURL))
}

// globMatch anchors pattern against the entire url. '*' matches any
// sequence of characters, including '/'. The host portion (before the
// first '/') is matched case-insensitively; the remainder (path, query,
// fragment) is matched case-sensitively, per spec §4.H.
func globMatch(pattern, url string) bool {
	pHost, pRest := splitHostRest(pattern)
	uHost, uRest := splitHostRest(url)

	if !globMatchCase(strings.ToLower(pHost), strings.ToLower(uHost)) {
		return false
	}
	return globMatchCase(pRest, uRest)
}

// splitHostRest splits a URL-or-pattern string into "scheme://host" and the
// remainder starting at the first '/' after the host, if any.
func splitHostRest(s string) (string, string) {
	schemeIdx := strings.Index(s, "://")
	searchFrom := 0
	if schemeIdx >= 0 {
		searchFrom = schemeIdx + 3
	}
	slashIdx := strings.Index(s[searchFrom:], "/")
	if slashIdx < 0 {
		return s, ""
	}
	abs := searchFrom + slashIdx
	return s[:abs], s[abs:]
}

// globMatchCase implements anchored glob matching where '*' matches any
// sequence of characters (including none), via dynamic programming over
// rune slices — avoids the catastrophic backtracking risk of a naive
// recursive implementation on adversarial patterns.
func globMatchCase(pattern, text string) bool {
	p := []rune(pattern)
	t := []rune(text)
	dp := make([][]bool, len(p)+1)
	for i := range dp {
		dp[i] = make([]bool, len(t)+1)
	}
	dp[0][0] = true
	for i := 1; i <= len(p); i++ {
		if p[i-1] == '*' {
			dp[i][0] = dp[i-1][0]
		}
	}
	for i := 1; i <= len(p); i++ {
		for j := 1; j <= len(t); j++ {
			switch p[i-1] {
			case '*':
				dp[i][j] = dp[i-1][j] || dp[i][j-1]
			default:
				dp[i][j] = dp[i-1][j-1] && p[i-1] == t[j-1]
			}
		}
	}
	return dp[len(p)][len(t)]
}
