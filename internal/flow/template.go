package flow

import "regexp"

// placeholderRe matches {variable} placeholders in node content templates.
var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// RenderTemplate substitutes {variable} placeholders with values from the
// flow context. Substitution is all-or-nothing: if any referenced variable is
// missing from the context, the template is returned unmodified rather than
// partially filled.
func RenderTemplate(template string, context map[string]string) string {
	matches := placeholderRe.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return template
	}
	for _, m := range matches {
		if _, ok := context[m[1]]; !ok {
			return template
		}
	}
	return placeholderRe.ReplaceAllStringFunc(template, func(ph string) string {
		return context[ph[1:len(ph)-1]]
	})
}
