package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/aberthier/facturation-cabinet/internal/application/emission"
	"github.com/aberthier/facturation-cabinet/internal/domain"
)

func TestComposeRaw(t *testing.T) {
	msg := emission.Message{
		To:             "sophie.martin@example.org",
		Cc:             "compta@cabinet.example",
		Subject:        "Votre facture FACT-202405-0001 - Cabinet Berthier",
		TextBody:       "Veuillez trouver votre facture en pièce jointe.",
		HTMLBody:       "<p>Bonjour,</p>",
		AttachmentName: "FACT-202405-0001_martin_sophie.pdf",
		Attachment:     []byte("%PDF-1.7 contenu"),
	}

	raw, err := composeRaw(msg)
	require.NoError(t, err)

	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	mime := string(decoded)

	assert.Contains(t, mime, "To: sophie.martin@example.org")
	assert.Contains(t, mime, "Cc: compta@cabinet.example")
	assert.Contains(t, mime, "FACT-202405-0001")
	assert.Contains(t, mime, "FACT-202405-0001_martin_sophie.pdf")
	assert.Contains(t, mime, "multipart/")
	// Jamais d'autres destinataires que To et Cc.
	assert.NotContains(t, mime, "Bcc:")
}

func TestComposeRawSansCc(t *testing.T) {
	raw, err := composeRaw(emission.Message{
		To:       "sophie.martin@example.org",
		Subject:  "Votre facture",
		TextBody: "corps",
	})
	require.NoError(t, err)

	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	assert.NotContains(t, string(decoded), "Cc:")
}

func TestClassify(t *testing.T) {
	bg := context.Background()

	t.Run("jeton expiré", func(t *testing.T) {
		got := classify(&googleapi.Error{Code: 401, Message: "invalid credentials"}, bg)
		assert.ErrorIs(t, got, domain.ErrAuthExpired)
	})

	t.Run("destinataire rejeté", func(t *testing.T) {
		got := classify(&googleapi.Error{Code: 400, Message: "Invalid to header"}, bg)
		assert.ErrorIs(t, got, domain.ErrRecipientRejected)
	})

	t.Run("indisponible", func(t *testing.T) {
		got := classify(&googleapi.Error{Code: 503, Message: "backend error"}, bg)
		assert.ErrorIs(t, got, domain.ErrTransportFailure)
	})

	t.Run("trop de requetes", func(t *testing.T) {
		got := classify(&googleapi.Error{Code: 429, Message: "rate limit"}, bg)
		assert.ErrorIs(t, got, domain.ErrTransportFailure)
	})

	t.Run("contexte expiré pendant l'envoi", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()

		got := classify(errors.New("net/http: request canceled"), ctx)
		assert.ErrorIs(t, got, domain.ErrDeliveryAmbiguous)
	})

	t.Run("erreur reseau franche", func(t *testing.T) {
		got := classify(errors.New("connection refused"), bg)
		assert.ErrorIs(t, got, domain.ErrTransportFailure)
	})
}

func TestInvalidRecipient(t *testing.T) {
	assert.True(t, invalidRecipient(&googleapi.Error{Message: "Invalid To header"}))
	assert.True(t, invalidRecipient(&googleapi.Error{Message: "Recipient address required"}))
	assert.False(t, invalidRecipient(&googleapi.Error{Message: "Bad Request"}))
}

func TestComposeRawBodyEncoded(t *testing.T) {
	raw, err := composeRaw(emission.Message{
		To:       "x@example.org",
		Subject:  "accents éèà",
		TextBody: strings.Repeat("pièce jointe ", 10),
	})
	require.NoError(t, err)
	_, err = base64.URLEncoding.DecodeString(raw)
	assert.NoError(t, err)
}
