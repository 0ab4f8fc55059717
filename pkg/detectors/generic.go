package detectors

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// GenericDetector matches each line against a single compiled regular
// expression. Lines that are not valid UTF-8 never match.
type GenericDetector struct {
	pattern *regexp.Regexp
}

func NewGenericDetector(pattern string) (*GenericDetector, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return &GenericDetector{pattern: re}, nil
}

func (d *GenericDetector) Detect(line []byte) bool {
	if !utf8.Valid(line) {
		return false
	}
	return d.pattern.Match(line)
}
