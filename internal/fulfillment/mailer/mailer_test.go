package mailer

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"ms-boxoffice/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEmbedsInlineImages(t *testing.T) {
	m, err := build("tickets@example.com", Message{
		To:      []string{"ada@example.com"},
		Subject: "Your tickets for Summer Night",
		HTML:    `<img src="cid:unit-0">`,
		Inline: []Attachment{
			{ContentID: "unit-0", Filename: "unit-0.png", Data: []byte("\x89PNG fake")},
		},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "Subject: Your tickets for Summer Night")
	assert.Contains(t, raw, "<ada@example.com>")
	assert.Contains(t, strings.ToLower(raw), "content-id: <unit-0>")
	assert.Contains(t, raw, "image/png")
}

func TestBuildRejectsBadRecipient(t *testing.T) {
	_, err := build("tickets@example.com", Message{To: []string{"not an address"}, Subject: "x"})
	assert.Error(t, err)
}

func TestLogMailerValidates(t *testing.T) {
	l := NewLog(logger.Discard())

	assert.NoError(t, l.Send(context.Background(), Message{To: []string{"ada@example.com"}, Subject: "hi"}))
	assert.Error(t, l.Send(context.Background(), Message{To: []string{"@@"}, Subject: "hi"}))
}
