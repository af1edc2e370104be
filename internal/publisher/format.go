// Package publisher renders listing messages and delivers them to a Telegram chat.
package publisher

import (
	"html"
	"strings"
)

const (
	salaryNotSpecified = "Зарплата не вказана"
	detailsLabel       = "Детальніше"
	tipsHeading        = "Корисні поради"
	tipsHashtags       = "#junior #tips"
)

// Format renders a listing as a Telegram HTML message. Every user supplied
// field is escaped; company is omitted when empty.
func Format(title, company, salary, link, summary string) string {
	var b strings.Builder

	b.WriteString("🧑‍💻 <b>")
	b.WriteString(html.EscapeString(strings.TrimSpace(title)))
	b.WriteString("</b>\n")

	if company = strings.TrimSpace(company); company != "" {
		b.WriteString("🏢 ")
		b.WriteString(html.EscapeString(company))
		b.WriteString("\n")
	}

	b.WriteString("💰 ")
	if salary = strings.TrimSpace(salary); salary != "" {
		b.WriteString(html.EscapeString(salary))
	} else {
		b.WriteString(salaryNotSpecified)
	}
	b.WriteString("\n\n")

	b.WriteString(html.EscapeString(strings.TrimSpace(summary)))
	b.WriteString("\n\n")

	b.WriteString(`🔗 <a href="`)
	b.WriteString(html.EscapeString(strings.TrimSpace(link)))
	b.WriteString(`">`)
	b.WriteString(detailsLabel)
	b.WriteString("</a>")

	return b.String()
}

// FormatTips renders generated career tips as a Telegram HTML message.
func FormatTips(text string) string {
	return "<b>" + tipsHeading + "</b>\n\n" + html.EscapeString(strings.TrimSpace(text)) + "\n\n" + tipsHashtags
}
