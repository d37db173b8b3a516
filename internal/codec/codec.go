// Package codec parses and renders environment variable sets in the three
// interchange formats KeyNest supports: dotenv, JSON, and YAML. Parsing and
// rendering are deliberately symmetric — exporting an environment and
// re-importing the output must reproduce the same key/value set exactly.
package codec

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies a supported interchange format.
type Format string

const (
	// FormatDotenv is the line-oriented KEY=value format.
	FormatDotenv Format = "env"
	// FormatJSON is a flat JSON object of string keys to scalar values.
	FormatJSON Format = "json"
	// FormatYAML is a flat YAML mapping of string keys to scalar values.
	FormatYAML Format = "yaml"
	// FormatAuto asks the codec to detect the format from the content.
	FormatAuto Format = "auto"
)

const (
	// MaxValueLength is the maximum accepted length of a single variable value.
	MaxValueLength = 10000
	// MaxKeys is the maximum number of variables accepted in one import.
	MaxKeys = 1000
	// MaxImportSize is the maximum accepted import payload size in bytes (10MB),
	// enforced before any parsing happens.
	MaxImportSize = 10 * 1024 * 1024
)

// importKeyPattern is the lenient key convention accepted on import; the
// storage layer applies the stricter uppercase convention on write.
var importKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsValidFormat reports whether s names a format usable in an import request.
func IsValidFormat(s string) bool {
	switch Format(s) {
	case FormatDotenv, FormatJSON, FormatYAML, FormatAuto:
		return true
	}
	return false
}

// Extension returns the file extension for an export in the given format.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "env"
	}
}

// ContentType returns the MIME type served for an export in the given format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/x-yaml"
	default:
		return "text/plain"
	}
}

// Detect inspects raw content and picks the most plausible format.
// JSON wins if the trimmed content starts with '{' and parses as an object;
// YAML wins if the content parses to a mapping; everything else is dotenv,
// which is deliberately the most forgiving fallback.
func Detect(content string) Format {
	trimmed := strings.TrimSpace(content)

	if strings.HasPrefix(trimmed, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			return FormatJSON
		}
	}

	var node map[string]any
	if err := yaml.Unmarshal([]byte(content), &node); err == nil && node != nil {
		// Plain KEY=value lines also parse as a YAML scalar or mapping of
		// nulls; only treat it as YAML when it yields real mapping values.
		if !looksLikeDotenv(trimmed) {
			return FormatYAML
		}
	}

	return FormatDotenv
}

// looksLikeDotenv reports whether at least one non-comment line contains '='
// before any ':', the signature of KEY=value content.
func looksLikeDotenv(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		colon := strings.Index(line, ":")
		if eq >= 0 && (colon < 0 || eq < colon) {
			return true
		}
	}
	return false
}

// Parse decodes raw content in the given format (detecting it first when
// format is FormatAuto) into a flat key/value map. Nested JSON/YAML
// structures are rejected; null values become empty strings.
func Parse(content string, format Format) (map[string]string, error) {
	if format == FormatAuto {
		format = Detect(content)
	}

	switch format {
	case FormatJSON:
		return parseJSON(content)
	case FormatYAML:
		return parseYAML(content)
	case FormatDotenv:
		parser := &DotenvParser{}
		vars := parser.Parse(content)
		if len(parser.Errors) > 0 {
			return nil, fmt.Errorf("invalid dotenv content: %s", strings.Join(parser.Errors, "; "))
		}
		return vars, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func parseJSON(content string) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return flatten(raw)
}

func parseYAML(content string) (map[string]string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if raw == nil {
		return map[string]string{}, nil
	}
	return flatten(raw)
}

// flatten converts a decoded mapping to string values, rejecting nested
// structures. Scalars are stringified the way the decoder produced them.
func flatten(raw map[string]any) (map[string]string, error) {
	vars := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			vars[key] = ""
		case string:
			vars[key] = v
		case bool:
			vars[key] = fmt.Sprintf("%v", v)
		case int, int64, uint64:
			vars[key] = fmt.Sprintf("%d", v)
		case float64:
			// JSON numbers decode as float64; render integers without a decimal point.
			if v == float64(int64(v)) {
				vars[key] = fmt.Sprintf("%d", int64(v))
			} else {
				vars[key] = fmt.Sprintf("%v", v)
			}
		case map[string]any, []any, map[any]any:
			return nil, fmt.Errorf("value for %q is not a scalar: nested structures are not supported", key)
		default:
			vars[key] = fmt.Sprintf("%v", v)
		}
	}
	return vars, nil
}

// ValidateSet performs structural validation of a parsed variable set before
// it is written: key format, value length, set size, and case-insensitive
// duplicate detection. It returns the full list of problems rather than
// stopping at the first so the caller can report them all at once.
func ValidateSet(vars map[string]string) []string {
	var errs []string

	if len(vars) > MaxKeys {
		errs = append(errs, fmt.Sprintf("too many variables: %d (max %d per import)", len(vars), MaxKeys))
	}

	seen := make(map[string]string, len(vars))
	for key, value := range vars {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, "key cannot be empty or whitespace only")
			continue
		}
		if !importKeyPattern.MatchString(key) {
			errs = append(errs, fmt.Sprintf("invalid key format %q: must start with letter/underscore, contain only letters/numbers/underscores", key))
		}
		if len(value) > MaxValueLength {
			errs = append(errs, fmt.Sprintf("value for %q is too long (max %d characters)", key, MaxValueLength))
		}
		lower := strings.ToLower(key)
		if prev, dup := seen[lower]; dup {
			errs = append(errs, fmt.Sprintf("duplicate keys (case-insensitive): %q and %q", prev, key))
		} else {
			seen[lower] = key
		}
	}

	sort.Strings(errs)
	return errs
}

// Render serializes a variable set in the given format. Dotenv output is
// sorted by key and quoted reversibly; JSON uses two-space indentation.
func Render(vars map[string]string, format Format) (string, error) {
	switch format {
	case FormatDotenv:
		return RenderDotenv(vars), nil
	case FormatJSON:
		out, err := json.MarshalIndent(vars, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to render JSON: %w", err)
		}
		return string(out), nil
	case FormatYAML:
		out, err := yaml.Marshal(vars)
		if err != nil {
			return "", fmt.Errorf("failed to render YAML: %w", err)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}
