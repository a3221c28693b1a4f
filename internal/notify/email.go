package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Email sends one message per alarm lifecycle event through an SMTP
// relay, authenticating as the sender.
type Email struct {
	sender   string
	receiver string
	server   string
	port     int
	password string
	log      *slog.Logger
}

func NewEmail(sender, receiver, server string, port int, password string, logger *slog.Logger) *Email {
	return &Email{
		sender:   sender,
		receiver: receiver,
		server:   server,
		port:     port,
		password: password,
		log:      logger,
	}
}

func (e *Email) AlarmStarted(_ context.Context, ev Event) {
	subject, body := formatStarted(ev)
	e.send(subject, body)
}

func (e *Email) AlarmEnded(_ context.Context, ev Event) {
	subject, body := formatEnded(ev)
	e.send(subject, body)
}

func (e *Email) AlarmChanged(_ context.Context, prev, next Event) {
	subject, body := formatChanged(prev, next)
	e.send(subject, body)
}

func (e *Email) AlarmReminder(_ context.Context, ev Event) {
	subject, body := formatReminder(ev)
	e.send(subject, body)
}

func formatStarted(e Event) (subject, body string) {
	subject = fmt.Sprintf("Alarm triggered for %s on %s!", e.Rule.Name, e.Node)
	body = fmt.Sprintf(
		"An alarm has been triggered for %s (%s) on node '%s'!\n"+
			"The value (%s) has gone %s %v for %d datapoints.",
		e.Title, e.Monitor, e.Node, e.Unit, e.Rule.Exceedance, e.Rule.Value, e.Rule.Count)
	return subject, body
}

func formatEnded(e Event) (subject, body string) {
	subject = fmt.Sprintf("Alarm ended for %s on %s", e.Rule.Name, e.Node)
	body = fmt.Sprintf("The alarm has ended for %s (%s) on node '%s'.",
		e.Title, e.Monitor, e.Node)
	return subject, body
}

func formatChanged(prev, next Event) (subject, body string) {
	subject = fmt.Sprintf("Alarm changed from %s to %s on %s!",
		prev.Rule.Name, next.Rule.Name, next.Node)
	body = fmt.Sprintf(
		"An alarm has changed for %s (%s) on node '%s'!\n"+
			"The value (%s) has gone from being %s %v for %d datapoints "+
			"to being %s %v for %d datapoints.",
		next.Title, next.Monitor, next.Node, next.Unit,
		prev.Rule.Exceedance, prev.Rule.Value, prev.Rule.Count,
		next.Rule.Exceedance, next.Rule.Value, next.Rule.Count)
	return subject, body
}

func formatReminder(e Event) (subject, body string) {
	subject = fmt.Sprintf("Alarm reminder for %s on %s!", e.Rule.Name, e.Node)
	body = fmt.Sprintf(
		"An alarm is still active for %s (%s)!\n"+
			"The value (%s) is %s %v.\n"+
			"This reminder's period is set to be: %s.",
		e.Title, e.Monitor, e.Unit, e.Rule.Exceedance, e.Rule.Value, e.Rule.Reminder)
	return subject, body
}

// send delivers one message. Failures are logged, never returned.
func (e *Email) send(subject, body string) {
	addr := fmt.Sprintf("%s:%d", e.server, e.port)
	msg := strings.Join([]string{
		"From: " + e.sender,
		"To: " + e.receiver,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")
	auth := smtp.PlainAuth("", e.sender, e.password, e.server)
	if err := smtp.SendMail(addr, auth, e.sender, []string{e.receiver}, []byte(msg)); err != nil {
		e.log.Error("failed to send email", "to", e.receiver, "error", err)
		return
	}
	e.log.Info("sent email", "to", e.receiver, "subject", subject)
}
