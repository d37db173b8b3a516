// dotenv.go implements the line-oriented KEY=value parser and renderer. The
// parser tracks per-line problems instead of failing fast so an import can
// report every bad line at once; strict mode promotes warnings to errors.
package codec

import (
	"fmt"
	"sort"
	"strings"
)

// DotenvParser parses .env content with per-line error tracking.
// In strict mode malformed lines are errors; otherwise they are recorded as
// warnings and skipped.
type DotenvParser struct {
	Strict   bool
	Errors   []string
	Warnings []string
}

// Parse parses content into a key/value map. Errors and Warnings are reset on
// each call and describe the lines that were skipped.
func (p *DotenvParser) Parse(content string) map[string]string {
	p.Errors = nil
	p.Warnings = nil

	vars := make(map[string]string)
	if content == "" {
		return vars
	}

	for lineNum, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Shell-style "export KEY=value" lines are common in checked-in env files.
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		eq := strings.Index(line, "=")
		if eq < 0 {
			p.report(fmt.Sprintf("line %d: no '=' found in %q", lineNum+1, raw))
			continue
		}

		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])

		if key == "" {
			p.report(fmt.Sprintf("line %d: empty key", lineNum+1))
			continue
		}
		if !importKeyPattern.MatchString(key) {
			p.report(fmt.Sprintf("line %d: invalid key format %q", lineNum+1, key))
			continue
		}

		vars[key] = unquoteValue(value)
	}

	return vars
}

func (p *DotenvParser) report(msg string) {
	if p.Strict {
		p.Errors = append(p.Errors, msg)
	} else {
		p.Warnings = append(p.Warnings, msg)
	}
}

// unquoteValue strips matching surrounding quotes. Double-quoted values are
// unescaped; single-quoted values are taken literally.
func unquoteValue(value string) string {
	if len(value) < 2 {
		return value
	}
	switch {
	case value[0] == '"' && value[len(value)-1] == '"':
		return unescapeDoubleQuoted(value[1 : len(value)-1])
	case value[0] == '\'' && value[len(value)-1] == '\'':
		return value[1 : len(value)-1]
	}
	return value
}

// unescapeDoubleQuoted processes backslash escapes in one left-to-right scan
// so that escaped backslashes never get re-interpreted. This is the exact
// inverse of the escaping applied by RenderDotenv, which is what makes an
// export→import round trip lossless.
func unescapeDoubleQuoted(value string) string {
	var b strings.Builder
	b.Grow(len(value))

	for i := 0; i < len(value); i++ {
		c := value[i]
		if c != '\\' || i+1 >= len(value) {
			b.WriteByte(c)
			continue
		}
		i++
		switch value[i] {
		case '"':
			b.WriteByte('"')
		case '\'':
			b.WriteByte('\'')
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		default:
			// Unknown escape: keep both characters.
			b.WriteByte('\\')
			b.WriteByte(value[i])
		}
	}

	return b.String()
}

// RenderDotenv serializes a variable set as .env content, sorted by key.
// Values containing whitespace, quotes, or newlines are double-quoted with
// backslash escaping; everything else is emitted bare.
func RenderDotenv(vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		value := vars[key]
		if needsQuoting(value) {
			b.WriteString(key)
			b.WriteString(`="`)
			b.WriteString(escapeDoubleQuoted(value))
			b.WriteString("\"\n")
		} else {
			b.WriteString(key)
			b.WriteString("=")
			b.WriteString(value)
			b.WriteString("\n")
		}
	}

	return b.String()
}

func needsQuoting(value string) bool {
	return strings.ContainsAny(value, " \t\n\r\"'#\\")
}

// escapeDoubleQuoted is the inverse of unescapeDoubleQuoted: backslash first
// so escapes introduced for other characters are never double-processed.
func escapeDoubleQuoted(value string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return r.Replace(value)
}
