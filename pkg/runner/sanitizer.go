package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// DefaultMaxInputSize is 4KB (conservative default)
	DefaultMaxInputSize = 4096
	// EnvMaxInputSize is the environment variable to override the default
	EnvMaxInputSize = "AUTHTREE_MAX_INPUT_SIZE"
)

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
	ErrInvalidAnswer = errors.New("answers must be strings, numbers or booleans")
)

// SanitizeAnswers applies SanitizeInput to every string answer.
// Keys are sanitized too; nested values are rejected.
func SanitizeAnswers(answers map[string]any) (map[string]any, error) {
	if len(answers) == 0 {
		return answers, nil
	}
	clean := make(map[string]any, len(answers))
	for key, value := range answers {
		k, err := SanitizeInput(key)
		if err != nil {
			return nil, err
		}
		switch v := value.(type) {
		case string:
			s, err := SanitizeInput(v)
			if err != nil {
				return nil, fmt.Errorf("answer %q: %w", k, err)
			}
			clean[k] = s
		case nil, bool, int, int64, float64:
			clean[k] = v
		default:
			return nil, fmt.Errorf("%w: %q is %T", ErrInvalidAnswer, k, value)
		}
	}
	return clean, nil
}

// SanitizeInput cleans user input by enforcing size limits,
// validating UTF-8, and stripping dangerous control characters.
func SanitizeInput(input string) (string, error) {
	// 1. Enforce Size Limit
	limit := getMaxInputSize()
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}

	// 2. Validate UTF-8
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	// 3. Strip control characters except \n, \t and \r

	// Fast path: if no control chars, return as is.
	clean := true
	for _, r := range input {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return input, nil
	}

	// Slow path: build clean string
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}

func getMaxInputSize() int {
	if val := os.Getenv(EnvMaxInputSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxInputSize
}
