package notify

import (
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modbusmon/modbusmon/internal/alarms"
	"github.com/modbusmon/modbusmon/internal/config"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  []byte
}

func testEmailer(cfg config.SMTPConfig) (*Emailer, chan sentMail) {
	sent := make(chan sentMail, 1)
	e := NewEmailer(cfg, zap.NewNop())
	e.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent <- sentMail{addr: addr, from: from, to: to, msg: msg}
		return nil
	}
	return e, sent
}

func overtempEvent(eventType string) alarms.Event {
	return alarms.Event{
		Timestamp: time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC),
		RuleID:    1,
		Name:      "oven-overtemp",
		Level:     alarms.LevelCritical,
		TagID:     10,
		Value:     120.5,
		EventType: eventType,
		Operator:  ">",
		Threshold: 100,
	}
}

func TestEmailerSendsOnIncoming(t *testing.T) {
	e, sent := testEmailer(config.SMTPConfig{
		Host: "mail.local", Port: 587,
		From: "alarms@plant.local",
		To:   []string{"ops@plant.local"},
	})

	e.AlarmRaised(overtempEvent(alarms.EventIncoming))

	select {
	case m := <-sent:
		assert.Equal(t, "mail.local:587", m.addr)
		assert.Equal(t, "alarms@plant.local", m.from)
		assert.Equal(t, []string{"ops@plant.local"}, m.to)
		body := string(m.msg)
		assert.Contains(t, body, "Subject: Alarm Triggered: oven-overtemp")
		assert.Contains(t, body, "Value: 120.5")
		assert.Contains(t, body, "Condition: value > 100")
		assert.Contains(t, body, "DateTime: 26/08/2026 14:30:00")
	case <-time.After(time.Second):
		t.Fatal("no mail sent for an INCOMING transition")
	}
}

func TestEmailerIgnoresOutgoing(t *testing.T) {
	e, sent := testEmailer(config.SMTPConfig{
		Host: "mail.local", Port: 587,
		From: "alarms@plant.local",
		To:   []string{"ops@plant.local"},
	})

	e.AlarmRaised(overtempEvent(alarms.EventOutgoing))

	select {
	case <-sent:
		t.Fatal("clears must not be mailed")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmailerSkipsWithoutRecipients(t *testing.T) {
	e, sent := testEmailer(config.SMTPConfig{Host: "mail.local", Port: 587})

	e.AlarmRaised(overtempEvent(alarms.EventIncoming))

	select {
	case <-sent:
		t.Fatal("nothing to deliver without recipients")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFanoutDispatchesToAll(t *testing.T) {
	var first, second []alarms.Event
	f := Fanout{
		notifierFunc(func(ev alarms.Event) { first = append(first, ev) }),
		notifierFunc(func(ev alarms.Event) { second = append(second, ev) }),
	}

	f.AlarmRaised(overtempEvent(alarms.EventIncoming))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, "oven-overtemp", first[0].Name)
}

type notifierFunc func(ev alarms.Event)

func (f notifierFunc) AlarmRaised(ev alarms.Event) { f(ev) }
