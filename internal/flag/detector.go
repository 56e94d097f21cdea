package flag

import (
	"regexp"
	"strings"
)

var defaultPatterns = []string{
	`flag\{[^}]+\}`,
	`CTF\{[^}]+\}`,
	`pwned\{[^}]+\}`,
	`\b[a-f0-9]{32,}\b`,
}

// strict matches the flag format accepted as a final answer.
var strict = regexp.MustCompile(`(?i)flag\{[^}]+\}`)

// Detector finds flag-like values in tool output. Matching is case-insensitive.
type Detector struct {
	patterns []*regexp.Regexp
}

func NewDetector(extra ...string) (*Detector, error) {
	d := &Detector{}
	for _, p := range append(append([]string{}, defaultPatterns...), extra...) {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		d.patterns = append(d.patterns, re)
	}
	return d, nil
}

// Default is the detector with only the built-in patterns.
func Default() *Detector {
	d, err := NewDetector()
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Detector) Detect(text string) bool {
	for _, re := range d.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Extract returns every distinct match in order of first appearance.
func (d *Detector) Extract(text string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, re := range d.patterns {
		for _, m := range re.FindAllString(text, -1) {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

// Strict returns the first value shaped like flag{...}, if any.
func Strict(text string) (string, bool) {
	m := strict.FindString(text)
	return m, m != ""
}

// StrictAll returns every flag{...} value in order of appearance.
func StrictAll(text string) []string {
	return strict.FindAllString(text, -1)
}

// IsFlagShaped reports whether the whole trimmed value is a flag{...} token.
func IsFlagShaped(value string) bool {
	v := strings.TrimSpace(value)
	m := strict.FindString(v)
	return m != "" && m == v
}
