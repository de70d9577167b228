package template

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Now is the time source for date functions. Tests replace it.
var Now = time.Now

var funcRegistry = map[string]func(args string) (string, error){
	"uuid":          fnUUID,
	"timestamp":     fnTimestamp,
	"random":        fnRandom,
	"random_string": fnRandomString,
	"random_digits": fnRandomDigits,
	"date":          fnDate,
	"date_offset":   fnDateOffset,
}

// evalFunction evaluates a built-in function call.
// Reports false if expr is not a known function call.
func evalFunction(expr string) (string, bool, error) {
	parenIdx := strings.Index(expr, "(")
	if parenIdx == -1 || !strings.HasSuffix(expr, ")") {
		return "", false, nil
	}

	funcName := expr[:parenIdx]
	args := expr[parenIdx+1 : len(expr)-1]

	fn, ok := funcRegistry[funcName]
	if !ok {
		return "", false, nil
	}

	result, err := fn(args)
	if err != nil {
		return "", true, fmt.Errorf("function %s: %w", funcName, err)
	}
	return result, true, nil
}

func fnUUID(args string) (string, error) {
	if args != "" {
		return "", fmt.Errorf("uuid() takes no arguments")
	}
	return uuid.NewString(), nil
}

func fnTimestamp(args string) (string, error) {
	if args != "" {
		return "", fmt.Errorf("timestamp() takes no arguments")
	}
	return strconv.FormatInt(Now().Unix(), 10), nil
}

// fnRandom generates a random integer between lo and hi (inclusive).
// Usage: random(lo,hi)
func fnRandom(args string) (string, error) {
	first, second, ok := strings.Cut(args, ",")
	if !ok || strings.Contains(second, ",") {
		return "", fmt.Errorf("random(min,max) requires exactly 2 arguments")
	}
	lo, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid min value: %w", err)
	}
	hi, err := strconv.ParseInt(strings.TrimSpace(second), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid max value: %w", err)
	}
	if lo > hi {
		return "", fmt.Errorf("min (%d) must be <= max (%d)", lo, hi)
	}

	n, err := rand.Int(rand.Reader, big.NewInt(hi-lo+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(lo+n.Int64(), 10), nil
}

func parseLength(args string) (int, error) {
	length, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return 0, fmt.Errorf("invalid length: %w", err)
	}
	if length <= 0 {
		return 0, fmt.Errorf("length must be positive")
	}
	if length > 1000 {
		return 0, fmt.Errorf("length must be <= 1000")
	}
	return length, nil
}

// fnRandomString generates a random alphanumeric string.
// Usage: random_string(length)
func fnRandomString(args string) (string, error) {
	length, err := parseLength(args)
	if err != nil {
		return "", err
	}
	return RandomFrom(alnum, length)
}

// fnRandomDigits generates a random string of decimal digits.
// Usage: random_digits(length)
func fnRandomDigits(args string) (string, error) {
	length, err := parseLength(args)
	if err != nil {
		return "", err
	}
	return RandomFrom(digits, length)
}

// fnDate formats the current time using Go's time format.
// Usage: date(2006-01-02)
func fnDate(args string) (string, error) {
	format := strings.TrimSpace(args)
	if format == "" {
		format = time.RFC3339
	}
	return Now().Format(format), nil
}

// fnDateOffset formats today plus n days.
// Usage: date_offset(1,2006-01-02)
func fnDateOffset(args string) (string, error) {
	days, layout, ok := strings.Cut(args, ",")
	if !ok {
		return "", fmt.Errorf("date_offset(days,layout) requires 2 arguments")
	}
	n, err := strconv.Atoi(strings.TrimSpace(days))
	if err != nil {
		return "", fmt.Errorf("invalid days: %w", err)
	}
	return DateOffset(Now(), n).Format(strings.TrimSpace(layout)), nil
}

const (
	alnum  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	digits = "0123456789"
)

// RandomFrom returns n characters drawn uniformly from charset.
func RandomFrom(charset string, n int) (string, error) {
	result := make([]byte, n)
	size := big.NewInt(int64(len(charset)))
	for i := range result {
		idx, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		result[i] = charset[idx.Int64()]
	}
	return string(result), nil
}

// RandomAlnum returns n random letters and digits.
func RandomAlnum(n int) string {
	s, err := RandomFrom(alnum, n)
	if err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return s
}

// RandomDigits returns n random decimal digits.
func RandomDigits(n int) string {
	s, err := RandomFrom(digits, n)
	if err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return s
}

// DateOffset returns t shifted by days calendar days, keeping the clock time.
func DateOffset(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}
