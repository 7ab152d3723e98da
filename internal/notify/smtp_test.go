package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestNotifier(sent *[]sentMail, sendErr error) *SMTPNotifier {
	n := NewSMTPNotifier(SMTPConfig{
		Host:    "mail.local",
		From:    "noreply@insight.local",
		BaseURL: "https://insight.local/",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		*sent = append(*sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return sendErr
	}
	return n
}

func TestSMTPNotifier_Complete(t *testing.T) {
	var sent []sentMail
	n := newTestNotifier(&sent, nil)

	require.NoError(t, n.NotifyComplete(context.Background(), "a@b.com", "job-1"))

	require.Len(t, sent, 1)
	assert.Equal(t, "mail.local:587", sent[0].addr)
	assert.Equal(t, []string{"a@b.com"}, sent[0].to)
	assert.Contains(t, sent[0].msg, "Subject: Your Insight Engine Analysis is Complete!")
	assert.Contains(t, sent[0].msg, "https://insight.local/report/job-1")
}

func TestSMTPNotifier_Error(t *testing.T) {
	var sent []sentMail
	n := newTestNotifier(&sent, nil)

	require.NoError(t, n.NotifyError(context.Background(), "a@b.com", "job-2", "boom"))

	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].msg, "Error: boom")
	assert.Contains(t, sent[0].msg, "job job-2")
}

func TestSMTPNotifier_Failures(t *testing.T) {
	var sent []sentMail
	n := newTestNotifier(&sent, errors.New("relay down"))

	err := n.NotifyComplete(context.Background(), "a@b.com", "job-3")
	assert.ErrorContains(t, err, "relay down")

	err = n.NotifyComplete(context.Background(), "", "job-4")
	assert.Error(t, err)
	assert.Len(t, sent, 1)
}
