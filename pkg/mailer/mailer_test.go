package mailer

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/noah-isme/carnet-api/internal/models"
	"github.com/noah-isme/carnet-api/pkg/config"
)

func testConfig() config.MailConfig {
	return config.MailConfig{Enabled: true, Host: "localhost", Port: 1025, From: "carnet@example.org"}
}

func TestSMTPMailerComposesAttachment(t *testing.T) {
	var captured *mail.Msg
	m := New(testConfig(), nil, WithSender(func(_ context.Context, msg *mail.Msg) error {
		captured = msg
		return nil
	}))

	err := m.Deliver(context.Background(), models.Notification{
		To:             "a@x.com",
		Subject:        "Carnet de Emprendedor",
		Body:           "Hola",
		AttachmentName: "carnet-emprendedor-7.pdf",
		Attachment:     []byte("%PDF-1.3"),
	})
	require.NoError(t, err)
	require.NotNil(t, captured)

	buf := &bytes.Buffer{}
	_, err = captured.WriteTo(buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Subject: Carnet de Emprendedor")
	assert.Contains(t, buf.String(), "carnet-emprendedor-7.pdf")
	assert.Contains(t, buf.String(), "Content-Type: application/pdf")
	assert.NotContains(t, buf.String(), "application/octet-stream")

	rcpts, err := captured.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com"}, rcpts)
}

func TestSMTPMailerWrapsTransportError(t *testing.T) {
	m := New(testConfig(), nil, WithSender(func(context.Context, *mail.Msg) error {
		return errors.New("535 authentication failed")
	}))
	err := m.Deliver(context.Background(), models.Notification{To: "a@x.com", Subject: "s"})
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Contains(t, err.Error(), "535")
}

func TestSMTPMailerRejectsBadRecipient(t *testing.T) {
	called := false
	m := New(testConfig(), nil, WithSender(func(context.Context, *mail.Msg) error {
		called = true
		return nil
	}))
	err := m.Deliver(context.Background(), models.Notification{To: "not-an-address", Subject: "s"})
	assert.ErrorIs(t, err, ErrDelivery)
	assert.False(t, called)
}

func TestDisabledAlwaysFails(t *testing.T) {
	err := Disabled{}.Deliver(context.Background(), models.Notification{To: "a@x.com"})
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Contains(t, err.Error(), "disabled")
}
