package template

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"opdflow/internal/core"
)

var (
	wildcardIndex = regexp.MustCompile(`\[\*\]`)
	numericIndex  = regexp.MustCompile(`\[(\d+)\]`)
)

// Extract reads one output per rule from a JSON body. Rules map output
// names to JSONPath expressions like $.items[0].id. Values are stored as
// strings; every missing path is reported.
func Extract(body []byte, rules map[string]string) (core.Outputs, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid JSON in response body")
	}

	out := make(core.Outputs, len(rules))
	var errList []error
	for name, path := range rules {
		value := gjson.GetBytes(body, gjsonPath(path))
		if !value.Exists() {
			errList = append(errList, fmt.Errorf("path %q not found for %q", path, name))
			continue
		}
		out[name] = value.String()
	}
	if len(errList) > 0 {
		return nil, errors.Join(errList...)
	}
	return out, nil
}

// ExtractPath returns the value at a single JSONPath and whether it exists.
func ExtractPath(body []byte, path string) (gjson.Result, bool) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, false
	}
	value := gjson.GetBytes(body, gjsonPath(path))
	return value, value.Exists()
}

// gjsonPath rewrites $.a[0].b[*].c as a.0.b.#.c.
func gjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	path = wildcardIndex.ReplaceAllString(path, ".#")
	return numericIndex.ReplaceAllString(path, ".$1")
}
