package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/modbusmon/modbusmon/internal/alarms"
	"github.com/modbusmon/modbusmon/internal/config"
)

// Fanout dispatches one alarm transition to several notifiers.
type Fanout []alarms.Notifier

func (f Fanout) AlarmRaised(ev alarms.Event) {
	for _, n := range f {
		n.AlarmRaised(ev)
	}
}

// Emailer mails alarm activations over SMTP. smtp.SendMail negotiates
// STARTTLS when the relay offers it. It satisfies the alarm engine's
// Notifier interface.
type Emailer struct {
	cfg    config.SMTPConfig
	logger *zap.Logger

	// send is replaced in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailer(cfg config.SMTPConfig, logger *zap.Logger) *Emailer {
	return &Emailer{cfg: cfg, logger: logger, send: smtp.SendMail}
}

// AlarmRaised mails INCOMING transitions only; a clear is visible on the
// dashboard but does not page anyone. Delivery runs off the evaluation
// goroutine so a slow relay never stalls rule evaluation.
func (e *Emailer) AlarmRaised(ev alarms.Event) {
	if ev.EventType != alarms.EventIncoming {
		return
	}
	if len(e.cfg.To) == 0 {
		return
	}

	msg := e.compose(ev)
	go func() {
		addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
		var a smtp.Auth
		if e.cfg.Username != "" {
			a = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password(), e.cfg.Host)
		}
		if err := e.send(addr, a, e.cfg.From, e.cfg.To, msg); err != nil {
			e.logger.Error("Alarm mail delivery failed",
				zap.String("rule", ev.Name),
				zap.String("relay", addr),
				zap.Error(err))
			return
		}
		e.logger.Info("Alarm mail sent",
			zap.String("rule", ev.Name),
			zap.Strings("to", e.cfg.To))
	}()
}

func (e *Emailer) compose(ev alarms.Event) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: Alarm Triggered: %s\r\n", ev.Name)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "DateTime: %s\r\n", ev.Timestamp.UTC().Format("02/01/2006 15:04:05"))
	fmt.Fprintf(&b, "Alarm: %s\r\n", ev.Name)
	fmt.Fprintf(&b, "Level: %s\r\n", ev.Level)
	fmt.Fprintf(&b, "Tag: %d\r\n", ev.TagID)
	fmt.Fprintf(&b, "Value: %g\r\n", ev.Value)
	fmt.Fprintf(&b, "Condition: value %s %g\r\n", ev.Operator, ev.Threshold)
	return []byte(b.String())
}
