package envexpand

import (
	"os"
	"regexp"
	"strings"

	"xorkevin.dev/kerrors"
)

const (
	envvarDefaultSeparator = ":-"
)

var (
	// ErrUnclosedBrace is returned when a ${ is not closed
	ErrUnclosedBrace errUnclosedBrace
	// ErrInvalidEnvVar is returned for variable names that are not identifiers
	ErrInvalidEnvVar errInvalidEnvVar
)

type (
	errUnclosedBrace struct{}
	errInvalidEnvVar struct{}
)

func (e errUnclosedBrace) Error() string {
	return "Unclosed brace"
}

func (e errInvalidEnvVar) Error() string {
	return "Invalid env var"
}

var (
	regexAlphanum = regexp.MustCompile("^[a-zA-Z_][a-zA-Z0-9_]*$")
)

// Expand replaces $VAR, ${VAR}, and ${VAR:-default} in s with values from
// vars, then the process environment, then the default.
func Expand(s string, vars map[string]string) (string, error) {
	b := strings.Builder{}
	for text := s; len(text) > 0; {
		k := strings.IndexByte(text, '$')
		if k < 0 || k+1 >= len(text) {
			b.WriteString(text)
			break
		}
		b.WriteString(text[0:k])
		text = text[k+1:]

		envvar := ""
		envvalDefault := ""
		if regexAlphanum.MatchString(string(text[0])) {
			end := strings.IndexFunc(text, func(r rune) bool {
				return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
			})
			if end < 0 {
				end = len(text)
			}
			envvar = text[0:end]
			text = text[end:]
		} else if text[0] == '{' {
			text = text[1:]
			end := strings.IndexByte(text, '}')
			if end < 0 {
				return "", kerrors.WithKind(nil, ErrUnclosedBrace, "Missing closing brace for env var")
			}
			envpair := strings.SplitN(text[0:end], envvarDefaultSeparator, 2)
			envvar = envpair[0]
			if len(envpair) > 1 {
				envvalDefault = envpair[1]
			}
			text = text[end+1:]
		} else {
			b.WriteString("$")
			continue
		}
		if !regexAlphanum.MatchString(envvar) {
			return "", kerrors.WithKind(nil, ErrInvalidEnvVar, "Invalid env var name: "+envvar)
		}

		b.WriteString(lookupEnv(envvar, envvalDefault, vars))
	}
	return b.String(), nil
}

func lookupEnv(envvar string, envvalDefault string, vars map[string]string) string {
	if val, ok := vars[envvar]; ok {
		return val
	}
	if val, ok := os.LookupEnv(envvar); ok && val != "" {
		return val
	}
	return envvalDefault
}
