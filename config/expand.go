package config

import (
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

const dollarSentinel = "\x00CACHEPIPE_DOLLAR\x00"

// ExpandEnvStrict expands environment variables in s.
//
// `$VAR` and `${VAR}` expand as with os.ExpandEnv, except that a `${VAR}`
// naming an unset variable is an error listing every missing name.
// `$$` emits a literal `$`.
func ExpandEnvStrict(s string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}
	s = strings.ReplaceAll(s, "$$", dollarSentinel)

	var missing []string
	for _, match := range envVarPattern.FindAllStringSubmatch(s, -1) {
		if _, ok := os.LookupEnv(match[1]); !ok && !slices.Contains(missing, match[1]) {
			missing = append(missing, match[1])
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", errors.Wrapf(ErrMissingEnv, "%s", strings.Join(missing, ", "))
	}

	s = os.ExpandEnv(s)
	return strings.ReplaceAll(s, dollarSentinel, "$"), nil
}
