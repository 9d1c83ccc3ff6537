package domain

import (
	"fmt"
	"strings"
)

// NotificationSettings controls the confirmation message sent after a
// payment is confirmed. Read-only from the webhook pipeline's perspective;
// the admin surface owns writes.
type NotificationSettings struct {
	Enabled         bool   `json:"enabled"`
	MessageTemplate string `json:"message_template"`
}

// Render fills the message template's placeholder tokens with booking data.
// Supported tokens: {nome}, {atividade}, {data}, {hora}, {valor}.
// Returns "" when the template is empty or only whitespace.
func (s *NotificationSettings) Render(b *Booking) string {
	template := strings.TrimSpace(s.MessageTemplate)
	if template == "" {
		return ""
	}

	r := strings.NewReplacer(
		"{nome}", b.CustomerName,
		"{atividade}", b.Activity,
		"{data}", b.Date,
		"{hora}", b.Time,
		"{valor}", formatValue(b.Value),
	)
	return r.Replace(template)
}

// formatValue renders a monetary value the way the messages read in
// production, e.g. "R$ 150,00".
func formatValue(v float64) string {
	return "R$ " + strings.Replace(fmt.Sprintf("%.2f", v), ".", ",", 1)
}
