package emission

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aberthier/facturation-cabinet/internal/domain/entity"
)

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// slugify réduit un nom propre à un fragment de nom de fichier sûr.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugRe.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// FileName construit le nom du PDF : FACT-AAAAMM-####_nom_prenom.pdf.
func FileName(rec *entity.InvoiceRecord) string {
	return fmt.Sprintf("%s_%s_%s.pdf", rec.Number, slugify(rec.Client.Nom), slugify(rec.Client.Prenom))
}

// composeMail assemble l'email transactionnel : destinataire unique
// (le client), comptable en copie, alternative texte + HTML, et la
// facture en pièce jointe unique.
func composeMail(rec *entity.InvoiceRecord, practice entity.Practice, comptableEmail string) Message {
	subject := fmt.Sprintf("Votre facture %s - %s", rec.Number, practice.Name)

	var html strings.Builder
	fmt.Fprintf(&html, "<p>Bonjour %s,</p>", rec.Client.FullName())
	fmt.Fprintf(&html, "<p>Veuillez trouver ci-joint votre facture <b>%s</b> pour la prestation :<br/><i>%s</i>.</p>",
		rec.Number, rec.Product.Libelle)
	if rec.ArchiveRef.Link != "" {
		fmt.Fprintf(&html, "<p>Vous pouvez également consulter la facture en ligne : <a href=\"%s\">ouvrir dans le Drive</a>.</p>",
			rec.ArchiveRef.Link)
	}
	fmt.Fprintf(&html, "<p>Bien cordialement,<br/>%s</p>", practice.Name)

	return Message{
		To:             rec.Client.Mail,
		Cc:             comptableEmail,
		Subject:        subject,
		TextBody:       "Veuillez trouver votre facture en pièce jointe.",
		HTMLBody:       html.String(),
		AttachmentName: FileName(rec),
	}
}
