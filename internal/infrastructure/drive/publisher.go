// Package drive publie les PDF rendus dans le dossier d'archives Google
// Drive. Publication idempotente par numéro de facture : republier le
// même numéro écrase l'objet existant au lieu d'en créer un second.
package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	driveapi "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/aberthier/facturation-cabinet/internal/domain"
	"github.com/aberthier/facturation-cabinet/internal/domain/entity"
)

// Publisher implémente emission.Archive au-dessus de l'API Drive v3.
type Publisher struct {
	svc      *driveapi.Service
	folderID string
}

// NewPublisher construit l'éditeur pour le dossier d'archives configuré.
func NewPublisher(svc *driveapi.Service, folderID string) *Publisher {
	return &Publisher{svc: svc, folderID: folderID}
}

// Publish dépose le PDF sous filename dans le dossier d'archives et
// renvoie une référence durable. Si un objet du même nom existe déjà
// (reprise d'une émission), son contenu est remplacé en place : jamais
// deux objets pour un même numéro.
func (p *Publisher) Publish(ctx context.Context, pdf []byte, number, filename string) (entity.ArchiveRef, error) {
	existing, err := p.findByName(ctx, filename)
	if err != nil {
		return entity.ArchiveRef{}, err
	}

	if existing != nil {
		updated, err := p.svc.Files.Update(existing.Id, &driveapi.File{}).
			Media(bytes.NewReader(pdf)).
			Fields("id", "webViewLink").
			Context(ctx).Do()
		if err != nil {
			return entity.ArchiveRef{}, classify(err, number)
		}
		return entity.ArchiveRef{ID: updated.Id, Link: updated.WebViewLink}, nil
	}

	created, err := p.svc.Files.Create(&driveapi.File{
		Name:     filename,
		Parents:  []string{p.folderID},
		MimeType: "application/pdf",
	}).
		Media(bytes.NewReader(pdf)).
		Fields("id", "webViewLink").
		Context(ctx).Do()
	if err != nil {
		return entity.ArchiveRef{}, classify(err, number)
	}
	return entity.ArchiveRef{ID: created.Id, Link: created.WebViewLink}, nil
}

// findByName cherche un objet non supprimé du même nom dans le dossier.
func (p *Publisher) findByName(ctx context.Context, filename string) (*driveapi.File, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeQuery(filename), p.folderID)
	res, err := p.svc.Files.List().
		Q(q).
		Fields("files(id, webViewLink)").
		PageSize(1).
		Context(ctx).Do()
	if err != nil {
		return nil, classify(err, filename)
	}
	if len(res.Files) == 0 {
		return nil, nil
	}
	return res.Files[0], nil
}

// classify traduit une erreur de l'API Drive dans la taxonomie du
// domaine : quota et permissions sont définitifs, le reste passager.
func classify(err error, ref string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401:
			return fmt.Errorf("archive %s: %v: %w", ref, gerr.Message, domain.ErrAuthExpired)
		case gerr.Code == 403:
			return fmt.Errorf("archive %s: %v: %w", ref, gerr.Message, domain.ErrArchiveRejected)
		case gerr.Code == 429 || gerr.Code >= 500:
			return fmt.Errorf("archive %s: %v: %w", ref, gerr.Message, domain.ErrArchiveUnavailable)
		}
		return fmt.Errorf("archive %s: %v: %w", ref, gerr.Message, domain.ErrArchiveRejected)
	}
	return fmt.Errorf("archive %s: %v: %w", ref, err, domain.ErrArchiveUnavailable)
}

// escapeQuery échappe les apostrophes d'un littéral de requête Drive.
func escapeQuery(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
