package email

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	from := mail.Address{Name: "EmergencyGuard Alert System", Address: "alerts@example.com"}
	msg := Message{
		To:      "mom@example.com",
		Subject: "🚨 EMERGENCY ALERT - MEDICAL - Immediate Response Required",
		Text:    "I need help\nLocation: https://maps.google.com/maps?q=1,2",
		HTML:    "<p>I need help</p>",
	}

	raw, err := BuildMessage(from, msg, "<id-1@example.com>", "b1")
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, msg.Subject, subject)
	assert.Equal(t, "mom@example.com", parsed.Header.Get("To"))
	assert.Equal(t, "<id-1@example.com>", parsed.Header.Get("Message-ID"))
	assert.Equal(t, "1", parsed.Header.Get("X-Priority"))

	sender, err := mail.ParseAddress(parsed.Header.Get("From"))
	require.NoError(t, err)
	assert.Equal(t, from.Name, sender.Name)
	assert.Equal(t, from.Address, sender.Address)

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	mr := multipart.NewReader(parsed.Body, params["boundary"])
	var bodies []string
	var types []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(part)
		require.NoError(t, err)
		types = append(types, strings.Split(part.Header.Get("Content-Type"), ";")[0])
		bodies = append(bodies, strings.ReplaceAll(string(b), "\r\n", "\n"))
	}
	assert.Equal(t, []string{"text/plain", "text/html"}, types)
	require.Len(t, bodies, 2)
	assert.Equal(t, msg.Text, strings.TrimRight(bodies[0], "\n"))
	assert.Equal(t, msg.HTML, strings.TrimRight(bodies[1], "\n"))
}

func TestNewMessageID(t *testing.T) {
	a := NewMessageID("alerts@example.com")
	b := NewMessageID("alerts@example.com")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, "@example.com>"))
	assert.True(t, strings.HasSuffix(NewMessageID(""), "@localhost>"))
}

func TestSendRejectsInvalidRecipient(t *testing.T) {
	c := New(Config{Server: "127.0.0.1", Port: 1})
	_, err := c.Send(context.Background(), Message{To: "nobody"})
	assert.ErrorContains(t, err, "invalid email address")
}
