package invoice

import "regexp"

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// renderTemplate substitutes {placeholder} tokens from vars. Unknown
// placeholders render as empty string, never an error; text without
// tokens passes through unchanged.
func renderTemplate(tmpl string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		return vars[m[1:len(m)-1]]
	})
}
