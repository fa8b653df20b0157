package tunnel

import "strings"

// TunnelDomainSuffix is the provider domain a reachability URL must belong
// to before it is trusted as this tunnel's address.
const TunnelDomainSuffix = "trycloudflare.com"

// urlSeparators end a URL embedded in a log line.
const urlSeparators = " \t\"'>|"

// ExtractTunnelURL finds the first well-formed reachability URL in one line
// of broker output. The rule: locate the first "https://", take the run of
// characters up to the next separator (whitespace, quote, '>' or '|'), and
// accept only if the result belongs to the tunnel provider's domain.
func ExtractTunnelURL(line string) (string, bool) {
	start := strings.Index(line, "https://")
	if start < 0 {
		return "", false
	}
	rest := line[start:]
	if end := strings.IndexAny(rest, urlSeparators); end >= 0 {
		rest = rest[:end]
	}
	if !strings.Contains(rest, TunnelDomainSuffix) {
		return "", false
	}
	return rest, true
}

// IsErrorLine reports whether a client-role broker line carries an explicit
// error or fatal marker. cloudflared logs either space-delimited levels
// (" ERR ") or JSON levels depending on configuration.
func IsErrorLine(line string) bool {
	return strings.Contains(line, " ERR ") ||
		strings.Contains(line, `"level":"error"`) ||
		strings.Contains(line, `"level":"fatal"`)
}
