package notify

import (
	"html"
	"strings"

	"smartbudget/internal/core"
)

// ProfileMessage renders the announcement for a new profile.
func ProfileMessage(p core.Profile) string {
	var b strings.Builder
	b.WriteString("🆕 <b>Yangi SmartBudget foydalanuvchisi:</b>\n\n")
	b.WriteString("👤 <b>Ism:</b> " + html.EscapeString(p.Name) + "\n")
	b.WriteString("📧 <b>Email:</b> " + html.EscapeString(orDash(p.Email)) + "\n")
	b.WriteString("📱 <b>Telefon:</b> " + html.EscapeString(orDash(p.Phone)) + "\n")
	b.WriteString("📅 <b>Ro'yxatdan o'tgan:</b> " + p.CreatedAt.Local().Format("02.01.2006"))
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
