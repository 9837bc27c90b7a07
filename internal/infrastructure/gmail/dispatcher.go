// Package gmail envoie les factures par l'API Gmail au nom du
// praticien. Une seule tentative d'envoi par émission : en cas d'issue
// incertaine (délai expiré après le départ de la requête), l'adapter
// remonte domain.ErrDeliveryAmbiguous et laisse la décision à l'humain.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	gomail "gopkg.in/gomail.v2"

	"github.com/aberthier/facturation-cabinet/internal/application/emission"
	"github.com/aberthier/facturation-cabinet/internal/domain"
)

// Dispatcher implémente emission.Mailer au-dessus de l'API Gmail v1.
// Les envois partent du compte authentifié ("me").
type Dispatcher struct {
	svc *gmailapi.Service
}

// NewDispatcher construit l'expéditeur sur un service Gmail authentifié.
func NewDispatcher(svc *gmailapi.Service) *Dispatcher {
	return &Dispatcher{svc: svc}
}

// Send compose le MIME et l'envoie en une seule tentative. L'appelant
// ne doit jamais rappeler Send pour le même message sans confirmation
// humaine : le transport ne déduplique pas.
func (d *Dispatcher) Send(ctx context.Context, msg emission.Message) error {
	raw, err := composeRaw(msg)
	if err != nil {
		return fmt.Errorf("composition du message: %v: %w", err, domain.ErrTransportFailure)
	}

	_, err = d.svc.Users.Messages.Send("me", &gmailapi.Message{Raw: raw}).
		Context(ctx).Do()
	if err != nil {
		return classify(err, ctx)
	}
	return nil
}

// composeRaw construit le MIME multipart et le renvoie encodé en
// base64url comme l'exige le champ Raw de l'API Gmail.
func composeRaw(msg emission.Message) (string, error) {
	m := gomail.NewMessage()
	m.SetHeader("To", msg.To)
	if msg.Cc != "" {
		m.SetHeader("Cc", msg.Cc)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternative("text/html", msg.HTMLBody)
	}
	if len(msg.Attachment) > 0 {
		m.Attach(msg.AttachmentName, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(msg.Attachment)
			return err
		}))
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}

// classify traduit une erreur d'envoi dans la taxonomie du domaine. Une
// expiration de contexte après le départ de la requête est ambiguë : le
// message a peut-être été remis, on ne réessaie jamais en aveugle.
func classify(err error, ctx context.Context) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		ctx.Err() != nil {
		return fmt.Errorf("envoi interrompu, remise incertaine: %v: %w", err, domain.ErrDeliveryAmbiguous)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401:
			return fmt.Errorf("envoi: %v: %w", gerr.Message, domain.ErrAuthExpired)
		case gerr.Code == 400 && invalidRecipient(gerr):
			return fmt.Errorf("envoi: %v: %w", gerr.Message, domain.ErrRecipientRejected)
		case gerr.Code == 429 || gerr.Code >= 500:
			return fmt.Errorf("envoi: %v: %w", gerr.Message, domain.ErrTransportFailure)
		}
		return fmt.Errorf("envoi: %v: %w", gerr.Message, domain.ErrTransportFailure)
	}
	return fmt.Errorf("envoi: %v: %w", err, domain.ErrTransportFailure)
}

// invalidRecipient reconnaît le rejet d'adresse renvoyé par Gmail.
func invalidRecipient(gerr *googleapi.Error) bool {
	msg := strings.ToLower(gerr.Message)
	return strings.Contains(msg, "invalid to header") ||
		strings.Contains(msg, "invalid cc header") ||
		strings.Contains(msg, "recipient address required")
}
