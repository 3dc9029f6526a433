package cache

import (
	"regexp"
	"strings"
	"sync"
)

// patternCache holds compiled wildcard patterns so repeated invalidation
// scans do not recompile. Keyed by pattern string.
var patternCache sync.Map

// matchPattern reports whether key matches a Redis-style glob where '*'
// matches any run of characters. Exact and single-trailing-star patterns
// take fast paths; anything else compiles to an anchored regexp.
func matchPattern(pattern, key string) bool {
	if pattern == "*" || pattern == key {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}
	if strings.HasSuffix(pattern, "*") && !strings.Contains(pattern[:len(pattern)-1], "*") {
		return strings.HasPrefix(key, pattern[:len(pattern)-1])
	}

	re, ok := patternCache.Load(pattern)
	if !ok {
		parts := strings.Split(pattern, "*")
		for i, p := range parts {
			parts[i] = regexp.QuoteMeta(p)
		}
		compiled, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
		if err != nil {
			return false
		}
		re, _ = patternCache.LoadOrStore(pattern, compiled)
	}
	return re.(*regexp.Regexp).MatchString(key)
}

// patternToLike translates a '*' glob into a SQL LIKE expression.
func patternToLike(pattern string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(pattern)
	return strings.ReplaceAll(escaped, "*", "%")
}
