package middleware

import (
	"net/http"
	"strings"

	"github.com/Wikid82/bastion/internal/securitylog"
	"github.com/Wikid82/bastion/internal/util"
)

const maxLoggedValue = 200

// SanitizeHeaders prepares request headers for logging. Credential-bearing
// headers are redacted with the same rules the security event logger uses;
// the rest are stripped of control characters and truncated.
func SanitizeHeaders(h http.Header) map[string][]string {
	if h == nil {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, vals := range h {
		lower := strings.ToLower(k)
		if securitylog.IsSensitiveKey(lower) || lower == "x-forwarded-for" {
			out[k] = []string{securitylog.RedactedValue}
			continue
		}
		clean := make([]string, 0, len(vals))
		for _, v := range vals {
			clean = append(clean, util.SanitizeAndTruncate(v, maxLoggedValue))
		}
		out[k] = clean
	}
	return out
}

// SanitizePath drops any query string and makes the path safe to log.
func SanitizePath(p string) string {
	if i := strings.IndexByte(p, '?'); i != -1 {
		p = p[:i]
	}
	return util.SanitizeAndTruncate(p, maxLoggedValue)
}
