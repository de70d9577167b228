// Package template expands ${...} placeholders in URLs, form values and
// config strings, and extracts values from JSON bodies.
package template

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"opdflow/internal/core"
)

// placeholder matches ${name}, ${env:NAME} and ${fn(args)}.
var placeholder = regexp.MustCompile(`\$\{([^}]+)\}`)

// Substitute expands every placeholder in text. Names resolve, in order,
// to an environment variable (env: prefix), a built-in function call and
// finally a value from vars. All unresolved placeholders are reported.
func Substitute(text string, vars core.Variables) (string, error) {
	if !strings.Contains(text, "${") {
		return text, nil
	}

	var errList []error
	out := placeholder.ReplaceAllStringFunc(text, func(match string) string {
		v, err := resolve(match[2:len(match)-1], vars)
		if err != nil {
			errList = append(errList, err)
			return match
		}
		return v
	})
	if len(errList) > 0 {
		return "", errors.Join(errList...)
	}
	return out, nil
}

func resolve(name string, vars core.Variables) (string, error) {
	if env, ok := strings.CutPrefix(name, "env:"); ok {
		if v, ok := os.LookupEnv(env); ok {
			return v, nil
		}
		return "", fmt.Errorf("env var %q not set", env)
	}
	if v, isFunc, err := evalFunction(name); isFunc {
		return v, err
	}
	if vars != nil {
		if v, ok := vars.Get(name); ok {
			return fmt.Sprint(v), nil
		}
	}
	return "", fmt.Errorf("variable %q not found", name)
}

// SubstituteMap expands the values of m, such as request headers.
func SubstituteMap(m map[string]string, vars core.Variables) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	var errList []error
	for k, v := range m {
		s, err := Substitute(v, vars)
		if err != nil {
			errList = append(errList, fmt.Errorf("%q: %w", k, err))
			continue
		}
		out[k] = s
	}
	if len(errList) > 0 {
		return nil, errors.Join(errList...)
	}
	return out, nil
}
