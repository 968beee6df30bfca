// Package envbuild constructs the environment block handed to worker
// processes. Workers receive an allow-listed subset of the host environment
// plus task-specific overrides rather than the full parent environment, since
// some platforms cap the byte size of a process's environment block and an
// unfiltered copy can fail process creation outright.
package envbuild

import (
	"sort"
	"strings"
)

// allowExact lists variables copied from the host environment verbatim:
// system path lookup, locale, terminal color handling, and TLS trust roots.
var allowExact = map[string]bool{
	"PATH":                true,
	"HOME":                true,
	"USER":                true,
	"SHELL":               true,
	"TMPDIR":              true,
	"TEMP":                true,
	"TMP":                 true,
	"LANG":                true,
	"LC_ALL":              true,
	"LC_CTYPE":            true,
	"TERM":                true,
	"COLORTERM":           true,
	"NO_COLOR":            true,
	"FORCE_COLOR":         true,
	"CLICOLOR":            true,
	"SSL_CERT_FILE":       true,
	"SSL_CERT_DIR":        true,
	"CURL_CA_BUNDLE":      true,
	"REQUESTS_CA_BUNDLE":  true,
	"NODE_EXTRA_CA_CERTS": true,
	"SYSTEMROOT":          true,
	"COMSPEC":             true,
}

// allowPrefixes lists name prefixes copied from the host environment: the
// worker's scripting runtime, the credential families, project tooling, and
// this program's own namespace.
var allowPrefixes = []string{
	"PYTHON",
	"ANTHROPIC",
	"CLAUDE",
	"GIT",
	"AGENTEXEC",
}

// forced is always present in the result regardless of host or override
// values. Line assembly depends on unbuffered UTF-8 output from the worker.
var forced = map[string]string{
	"PYTHONUNBUFFERED": "1",
	"PYTHONIOENCODING": "utf-8",
}

// Build returns the worker environment in "KEY=value" form: the allow-listed
// subset of host, then extra overrides, then the forced runtime flags. Extra
// wins over inherited values; forced flags win over both. The result is
// sorted by key so output is deterministic. Missing optional variables are
// not an error.
func Build(host []string, extra map[string]string) []string {
	merged := make(map[string]string, len(allowExact)+len(extra)+len(forced))

	for _, kv := range host {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		if allowed(key) {
			// Later host duplicates win, matching os.Environ semantics.
			merged[key] = value
		}
	}

	for key, value := range extra {
		if key == "" {
			continue
		}
		merged[key] = value
	}

	for key, value := range forced {
		merged[key] = value
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, key := range keys {
		env = append(env, key+"="+merged[key])
	}
	return env
}

// allowed reports whether a host variable passes the filter.
func allowed(key string) bool {
	if allowExact[key] {
		return true
	}
	for _, prefix := range allowPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
