package security

// Report describes the security-relevant settings a server runs with.
type Report struct {
	SecureCookies         bool
	CookieDomain          string
	AuthorityTLS          bool
	LoginThrottle         bool
	PushEnabled           bool
	PushSignatureVerified bool
	AuditEnabled          bool
}

// Warnings lists the settings that should not reach production.
func (r Report) Warnings() []string {
	var out []string
	if !r.SecureCookies {
		out = append(out, "token cookies are sent without the Secure attribute")
	}
	if !r.AuthorityTLS {
		out = append(out, "the authority is reached over plain HTTP")
	}
	if !r.LoginThrottle {
		out = append(out, "failed logins are not throttled")
	}
	if r.PushEnabled && !r.PushSignatureVerified {
		out = append(out, "push subscribers are identified by unverified access tokens")
	}
	return out
}
