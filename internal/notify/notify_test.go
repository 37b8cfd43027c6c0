package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/allyourbase/oraclone/internal/migrate"
	"github.com/allyourbase/oraclone/internal/tables"
)

var started = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func event(err error) Event {
	return Event{
		RunID:    "run-1",
		Database: "cds",
		Started:  started,
		Finished: started.Add(90 * time.Second),
		Tables:   12,
		Failed:   []string{"APP.BROKEN"},
		Rows:     4200,
		Errors:   3,
		Err:      err,
	}
}

type fakePublisher struct {
	topic, subject, message string
	err                     error
}

func (f *fakePublisher) Publish(_ context.Context, topic, subject, message string) (string, error) {
	f.topic, f.subject, f.message = topic, subject, message
	return "msg-1", f.err
}

type fakeSender struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeSender) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	f.sent = append(f.sent, messages...)
	return f.err
}

func TestEventText(t *testing.T) {
	e := event(nil)
	assert.Equal(t, "oraclone cds succeeded", e.Subject())
	body := e.Body()
	assert.Contains(t, body, "Run:      run-1")
	assert.Contains(t, body, "Duration: 1m30s")
	assert.Contains(t, body, "Tables:   12 (4200 rows)")
	assert.Contains(t, body, "  APP.BROKEN")
	assert.NotContains(t, body, "migration error")

	e = event(errors.New("can not load table struct"))
	e.Database = ""
	assert.Equal(t, "oraclone migration failed", e.Subject())
	assert.Contains(t, e.Body(), "migration error: can not load table struct")
}

func TestFromSummary(t *testing.T) {
	s := &migrate.Summary{
		RunID:    "run-9",
		Started:  started,
		Finished: started.Add(time.Minute),
		Tables: []tables.Result{
			{Schema: "APP", Table: "A", Rows: 5},
			{Schema: "APP", Table: "B", Rows: 6},
		},
		Errors: 1,
	}
	e := FromSummary("cds", s)
	assert.Equal(t, "run-9", e.RunID)
	assert.Equal(t, 2, e.Tables)
	assert.Equal(t, int64(11), e.Rows)
	assert.Equal(t, 1, e.Errors)
}

func TestSNS(t *testing.T) {
	pub := &fakePublisher{}
	n := NewSNS(pub, "arn:aws:sns:eu-central-1:123:migrations")
	require.NoError(t, n.Notify(t.Context(), event(nil)))
	assert.Equal(t, "arn:aws:sns:eu-central-1:123:migrations", pub.topic)
	assert.Equal(t, "oraclone cds succeeded", pub.subject)
	assert.Contains(t, pub.message, "run-1")

	pub.err = errors.New("AuthorizationError")
	err := n.Notify(t.Context(), event(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sns: publish: AuthorizationError")
}

func TestMail(t *testing.T) {
	sender := &fakeSender{}
	m := NewMailSender(sender, "oraclone@example.com", []string{"dba@example.com", "ops@example.com"})
	require.NoError(t, m.Notify(t.Context(), event(nil)))
	require.Len(t, sender.sent, 1)

	rcpts, err := sender.sent[0].GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"dba@example.com", "ops@example.com"}, rcpts)
	assert.Equal(t, []string{"oraclone cds succeeded"}, sender.sent[0].GetGenHeader(mail.HeaderSubject))

	sender.err = errors.New("connection refused")
	err = m.Notify(t.Context(), event(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mail: send: connection refused")
}

func TestMailRejectsBadAddress(t *testing.T) {
	sender := &fakeSender{}
	m := NewMailSender(sender, "not an address", []string{"dba@example.com"})
	err := m.Notify(t.Context(), event(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid from address")
	assert.Empty(t, sender.sent)
}

func TestNotifiersJoinFailures(t *testing.T) {
	failing := &fakePublisher{err: errors.New("throttled")}
	ok := &fakeSender{}
	ns := Notifiers{
		NewSNS(failing, "arn:topic"),
		NewMailSender(ok, "oraclone@example.com", []string{"dba@example.com"}),
	}
	err := ns.Notify(t.Context(), event(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
	assert.Len(t, ok.sent, 1)
	assert.NoError(t, Notifiers{}.Notify(t.Context(), event(nil)))
}
