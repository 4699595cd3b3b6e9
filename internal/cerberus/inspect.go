package cerberus

import (
	"net/url"
	"regexp"
	"sort"
)

// Kind names the class of attack a finding matched.
type Kind string

const (
	KindSQL           Kind = "sql"
	KindXSS           Kind = "xss"
	KindCommand       Kind = "command"
	KindPathTraversal Kind = "path_traversal"
)

// Finding is one suspicious input.
type Finding struct {
	Kind     Kind
	Location string // "path" or "query"
	Input    string
}

var (
	sqlPattern = regexp.MustCompile(`(?i)(\bunion\b[\s\S]*\bselect\b|'\s*(or|and)\b|\bor\s+\d+\s*=\s*\d+|;\s*(drop|delete|insert|update|alter|truncate)\b|--\s*$|/\*|\b(sleep|benchmark|pg_sleep)\s*\()`)
	xssPattern = regexp.MustCompile(`(?i)(<\s*/?\s*script\b|javascript\s*:|\bon(error|load|click|mouseover|focus)\s*=|<\s*(iframe|object|embed|svg)\b|<\s*img\b[^>]*\bsrc\s*=)`)
	cmdPattern = regexp.MustCompile("(?i)(;|\\|\\|?|&&|`|\\$\\()\\s*(cat|ls|rm|wget|curl|nc|bash|sh|chmod|chown|whoami|id|uname|ping)\\b")
	// Inputs are already decoded once; a leftover encoded dot means double encoding.
	traversalPattern = regexp.MustCompile(`(?i)((^|[\\/])\.\.([\\/]|$)|%2e%2e|%252e)`)
)

var injectionChecks = []struct {
	kind    Kind
	pattern *regexp.Regexp
}{
	{KindSQL, sqlPattern},
	{KindCommand, cmdPattern},
	{KindXSS, xssPattern},
}

// Inspect scans a decoded request path and its query parameters. At most one
// finding is returned per kind, path findings first.
func Inspect(path string, query url.Values) []Finding {
	seen := make(map[Kind]bool, 4)
	var out []Finding
	check := func(location, input string) {
		if input == "" {
			return
		}
		if !seen[KindPathTraversal] && traversalPattern.MatchString(input) {
			seen[KindPathTraversal] = true
			out = append(out, Finding{Kind: KindPathTraversal, Location: location, Input: input})
		}
		for _, ic := range injectionChecks {
			if !seen[ic.kind] && ic.pattern.MatchString(input) {
				seen[ic.kind] = true
				out = append(out, Finding{Kind: ic.kind, Location: location, Input: input})
			}
		}
	}

	check("path", path)

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		check("query", k)
		for _, v := range query[k] {
			check("query", v)
		}
	}
	return out
}
