package notification

import (
	"fmt"
	"html"
	"log"

	"netwatch/internal/bus"
	"netwatch/internal/model"
)

// AlertMailer listens for alert events on the bus and emails every alert at
// or above the configured minimum severity.
type AlertMailer struct {
	notifier    model.Notifier
	minSeverity model.Severity
}

// NewAlertMailer creates an AlertMailer. An unknown minSeverity falls back
// to HIGH.
func NewAlertMailer(notifier model.Notifier, minSeverity model.Severity) *AlertMailer {
	if !model.ValidateSeverity(minSeverity) {
		minSeverity = model.SeverityHigh
	}
	return &AlertMailer{notifier: notifier, minSeverity: minSeverity}
}

// Attach subscribes the mailer to the bus and returns the unsubscribe
// function.
func (m *AlertMailer) Attach(b *bus.Bus) func() {
	return b.Subscribe(m.handle)
}

func (m *AlertMailer) handle(ev model.Event) {
	if ev.Type != model.EventAlertCreated || ev.Alert == nil {
		return
	}
	if !m.shouldMail(ev.Alert.Severity) {
		return
	}

	subject, body := composeAlertEmail(ev.Alert)
	if err := m.notifier.Send(subject, body); err != nil {
		log.Printf("notification: failed to send alert email: %v", err)
	}
}

func (m *AlertMailer) shouldMail(s model.Severity) bool {
	return model.SeverityRank(s) >= model.SeverityRank(m.minSeverity)
}

func composeAlertEmail(a *model.Alert) (subject, body string) {
	subject = fmt.Sprintf("[%s] %s", a.Severity, a.Title)

	body = fmt.Sprintf(
		"<h2>%s</h2>"+
			"<p>%s</p>"+
			"<ul>"+
			"<li><b>Severity:</b> %s</li>"+
			"<li><b>Type:</b> %s</li>"+
			"<li><b>Source:</b> %s</li>"+
			"<li><b>Time:</b> %s</li>"+
			"</ul>",
		html.EscapeString(a.Title),
		html.EscapeString(a.Description),
		a.Severity,
		html.EscapeString(a.Type),
		html.EscapeString(a.SourceIP),
		a.Timestamp.Format("2006-01-02 15:04:05 MST"),
	)
	return subject, body
}
