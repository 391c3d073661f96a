// Package notification sends operator alerts. Its only subscriber today is
// the drift alert mailer: when a sweep finds more drift than the configured
// threshold, someone should look at the feed before the engine keeps
// papering over it.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"dealersync_backend/internal/events"
	"dealersync_backend/platform/config"
	"dealersync_backend/platform/logger"
)

// DriftMailer mails a summary when a completed sweep crosses the drift
// threshold.
type DriftMailer struct {
	cfg config.MailConfig
	log *logger.Logger
}

// NewDriftMailer creates the mailer and subscribes it to sweep completions.
func NewDriftMailer(cfg config.MailConfig, bus events.Bus, log *logger.Logger) *DriftMailer {
	m := &DriftMailer{cfg: cfg, log: log}
	bus.Subscribe(events.SweepCompleted{}.EventName(), events.HandlerFunc(m.handleSweepCompleted))
	return m
}

func (m *DriftMailer) handleSweepCompleted(ctx context.Context, event events.Event) error {
	completed, ok := event.(events.SweepCompleted)
	if !ok {
		return nil
	}
	if !m.cfg.IsMailEnabled() {
		return nil
	}

	threshold := m.cfg.GetDriftAlertThreshold()
	if threshold <= 0 || completed.Drift < threshold {
		return nil
	}

	if err := m.send(ctx, completed); err != nil {
		m.log.Warn("drift alert send failed", "error", err)
		return err
	}
	return nil
}

func (m *DriftMailer) send(ctx context.Context, completed events.SweepCompleted) error {
	recipients := m.cfg.GetMailAlertRecipients()
	if len(recipients) == 0 {
		return nil
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.GetMailFromAddress()); err != nil {
		return fmt.Errorf("drift alert from: %w", err)
	}
	if err := msg.To(recipients...); err != nil {
		return fmt.Errorf("drift alert to: %w", err)
	}
	msg.Subject(fmt.Sprintf("[dealersync] %d drift corrections in %s", completed.Drift, completed.Source))
	msg.SetBodyString(gomail.TypeTextPlain, driftAlertBody(completed))

	client, err := gomail.NewClient(m.cfg.GetSMTPHost(),
		gomail.WithPort(m.cfg.GetSMTPPort()),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.cfg.GetSMTPUsername()),
		gomail.WithPassword(m.cfg.GetSMTPPassword()),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
	)
	if err != nil {
		return fmt.Errorf("drift alert client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("drift alert send: %w", err)
	}
	return nil
}

func driftAlertBody(completed events.SweepCompleted) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sweep %s corrected %d drifted vehicles.\n\n", completed.Source, completed.Drift)
	fmt.Fprintf(&b, "Total plates:  %d\n", completed.Total)
	fmt.Fprintf(&b, "Created:       %d\n", completed.Created)
	fmt.Fprintf(&b, "Updated:       %d\n", completed.Updated)
	fmt.Fprintf(&b, "Skipped:       %d\n", completed.Skipped)
	fmt.Fprintf(&b, "Conflicted:    %d\n", completed.Conflicted)
	fmt.Fprintf(&b, "Failed:        %d\n", completed.Failed)
	if completed.Cancelled {
		b.WriteString("\nThe sweep was cancelled before finishing; counts are partial.\n")
	}
	b.WriteString("\nRepeated drift usually means someone is editing the derived tables by hand or the feed mapping changed.\n")
	return b.String()
}
