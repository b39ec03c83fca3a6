package email

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"testing"

	"github.com/brojonat/craftmint/service/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPMailer_NotConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SMTPConfig
	}{
		{"empty", config.SMTPConfig{}},
		{"no password", config.SMTPConfig{Host: "smtp.example.com", Port: 465, Username: "shop@example.com"}},
		{"no username", config.SMTPConfig{Host: "smtp.example.com", Port: 465, Password: "secret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewSMTPMailer(tt.cfg)
			assert.False(t, m.Configured())
			err := m.Send(context.Background(), Message{To: "alice@example.com"})
			assert.ErrorIs(t, err, ErrNotConfigured)
		})
	}
}

func TestSMTPMailer_RequiresRecipient(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{Host: "smtp.example.com", Port: 465, Username: "u", Password: "p"})
	err := m.Send(context.Background(), Message{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotConfigured)
}

func TestBuildMessage(t *testing.T) {
	raw, err := BuildMessage("shop@example.com", Message{
		To:      "alice@example.com",
		Subject: "Your New Artifact!",
		Text:    "plain body",
		HTML:    "<p>html body</p>",
	})
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "shop@example.com", msg.Header.Get("From"))
	assert.Equal(t, "alice@example.com", msg.Header.Get("To"))
	assert.Equal(t, "Your New Artifact!", msg.Header.Get("Subject"))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])
	var types, bodies []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(p)
		require.NoError(t, err)
		types = append(types, p.Header.Get("Content-Type"))
		bodies = append(bodies, string(b))
	}
	assert.Equal(t, []string{"text/plain; charset=utf-8", "text/html; charset=utf-8"}, types)
	assert.Equal(t, []string{"plain body", "<p>html body</p>"}, bodies)
}

func TestPurchaseMessage(t *testing.T) {
	msg, err := PurchaseMessage("alice@example.com", PurchaseDetails{
		ArtifactID:  "abc123",
		ImageURI:    "https://ipfs.example/ipfs/img",
		ArtifactURI: "https://ipfs.example/ipfs/meta",
	})
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "Your New Artifact!", msg.Subject)
	assert.Contains(t, msg.HTML, `<img src="https://ipfs.example/ipfs/img"`)
	assert.Contains(t, msg.HTML, `href="https://ipfs.example/ipfs/meta"`)
	assert.Contains(t, msg.HTML, "abc123")
	assert.Contains(t, msg.Text, "https://ipfs.example/ipfs/img")
}

func TestPurchaseMessage_EscapesValues(t *testing.T) {
	msg, err := PurchaseMessage("alice@example.com", PurchaseDetails{
		ArtifactID: "<script>alert(1)</script>",
		ImageURI:   "https://ipfs.example/ipfs/img",
	})
	require.NoError(t, err)

	assert.NotContains(t, msg.HTML, "<script>")
	assert.NotContains(t, msg.HTML, "View the artifact metadata")
}
