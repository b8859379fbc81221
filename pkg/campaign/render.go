package campaign

import "strings"

const fallbackName = "Friend"

// RenderTemplate substitutes member variables into campaign copy.
// Only {{name}} is supported today.
func RenderTemplate(body, fullName string) string {
	name := strings.TrimSpace(fullName)
	if name == "" {
		name = fallbackName
	}
	return strings.ReplaceAll(body, "{{name}}", name)
}

// AppendUnsubscribeFooter adds the compliance footer every marketing email
// carries.
func AppendUnsubscribeFooter(html, unsubscribeURL string) string {
	var b strings.Builder
	b.WriteString(html)
	b.WriteString(`<br/><hr/><p style="text-align: center; font-size: 12px; color: #888;"><a href="`)
	b.WriteString(unsubscribeURL)
	b.WriteString(`">Unsubscribe</a></p>`)
	return b.String()
}
