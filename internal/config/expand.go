package config

import (
	"os"
	"regexp"
)

// envPattern matches ${NAME} and ${NAME:-default}, the two forms spec.md
// section 6 documents. None of the retrieval pack's dependencies implement
// bash-style ":-default" fallback expansion, so this is a small
// stdlib-plus-regex helper rather than an imported library.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandEnv replaces ${NAME} and ${NAME:-default} references in raw with
// values from os.LookupEnv, applying the default when NAME is unset or
// empty.
func expandEnv(raw []byte) []byte {
	return envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envPattern.FindSubmatch(match)
		name := string(groups[1])
		def := string(groups[3])
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return []byte(v)
		}
		return []byte(def)
	})
}
