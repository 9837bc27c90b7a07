package emission

import (
	"context"

	"github.com/aberthier/facturation-cabinet/internal/domain/entity"
)

// Ledger est le port du registre des factures partagé : strictement
// additif, schéma créé à la première écriture. Les erreurs transitoires
// remontent en domain.ErrLedgerUnavailable.
type Ledger interface {
	// EnsureSchema crée l'onglet et sa ligne d'en-tête s'ils manquent.
	EnsureSchema(ctx context.Context) error
	// NumbersForPeriod renvoie les valeurs brutes de la colonne numero ;
	// le filtrage par période et format est fait côté domaine.
	NumbersForPeriod(ctx context.Context, period string) ([]string, error)
	// Append ajoute une ligne ; jamais de modification en place.
	Append(ctx context.Context, row entity.LedgerRow) error
	// LastRowFor renvoie la dernière ligne (client, produit, période), ou
	// nil si aucune ; sert de porte de confirmation des re-facturations.
	LastRowFor(ctx context.Context, clientID, productID, period string) (*entity.LedgerRow, error)
}

// Archive est le port du dépôt de documents. Publish est idempotent par
// numéro de facture : republier le même numéro écrase l'objet existant,
// jamais de doublon.
type Archive interface {
	Publish(ctx context.Context, pdf []byte, number, filename string) (entity.ArchiveRef, error)
}

// Message est un email transactionnel avec une pièce jointe unique.
type Message struct {
	To             string
	Cc             string
	Subject        string
	TextBody       string
	HTMLBody       string
	AttachmentName string
	Attachment     []byte
}

// Mailer est le port du transport mail authentifié. Aucune idempotence
// au niveau transport : l'orchestrateur n'appelle Send qu'une fois par
// émission. Une issue ambiguë remonte en domain.ErrDeliveryAmbiguous.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Renderer produit le PDF d'un record validé. Déterministe : le même
// record donne des octets identiques, ce qui rend les reprises
// d'archivage sûres.
type Renderer interface {
	Render(rec *entity.InvoiceRecord) ([]byte, error)
}

// Journal est le port du journal d'émission local : réservations de
// numéros (trace des numéros brûlés), état du run à chaque transition,
// et cache des octets PDF pour les reprises.
type Journal interface {
	MaxReservedSeq(ctx context.Context, period string) (int, error)
	ReserveNumber(ctx context.Context, runID, number, period string, seq int) error
	SaveRun(ctx context.Context, rec *entity.InvoiceRecord) error
	LoadRun(ctx context.Context, number string) (*entity.InvoiceRecord, error)
	SavePDF(ctx context.Context, number string, pdf []byte) error
	LoadPDF(ctx context.Context, number string) ([]byte, error)
}
