package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// États d'une émission. Strictement progressifs : aucun état n'est
// ré-emprunté, sauf reprise explicite par l'opérateur depuis l'étape
// en échec.
const (
	StateIdle           = "EN_ATTENTE"     // Entrées chargées, rien d'engagé
	StateNumberReserved = "NUMERO_RESERVE" // Numéro réservé (brûlé si échec ultérieur)
	StateRendered       = "RENDUE"         // PDF produit, octets en cache
	StateArchived       = "ARCHIVEE"       // Objet déposé dans le Drive
	StateDelivered      = "ENVOYEE"        // Email parti : irréversible
	StateLogged         = "JOURNALISEE"    // Ligne ajoutée au registre (succès terminal)
	StateFailed         = "ECHEC"          // Terminal avec (étape, cause)
)

// Statut de remise de l'email.
const (
	DeliveryNotSent = "NON_ENVOYEE"
	DeliverySent    = "ENVOYEE"
	DeliveryUnknown = "INCONNUE" // le transport a peut-être accepté ; ne jamais renvoyer
)

// Noms d'étapes du pipeline, utilisés dans StageFailure et le journal local.
const (
	StageNumbering = "numerotation"
	StageRender    = "rendu"
	StageArchive   = "archivage"
	StageDelivery  = "envoi"
	StageLedger    = "journalisation"
)

// ArchiveRef est la référence durable renvoyée par le dépôt d'archive :
// l'identifiant de l'objet et un lien consultable.
type ArchiveRef struct {
	ID   string
	Link string
}

// InvoiceRecord est l'état d'une émission, propriété exclusive de
// l'orchestrateur du début à la fin du run. Il est muté étape par étape
// puis projeté en LedgerRow une fois terminal.
type InvoiceRecord struct {
	RunID  string
	Number string // FACT-YYYYMM-####
	Period string // YYYYMM

	Client   Client
	Product  Product // instantané du catalogue au moment du run
	Quantity int
	Notes    string

	IssuedAt   time.Time
	MontantHT  decimal.Decimal
	MontantTVA decimal.Decimal
	MontantTTC decimal.Decimal

	ArchiveRef     ArchiveRef
	DeliveryStatus string

	State         string
	FailedStage   string
	FailureReason string
}

// ComputeTotals fixe les montants à partir du produit normalisé et de la
// quantité. La TVA est la différence TTC-HT (jamais recalculée depuis le
// taux, pour rester alignée sur les prix du catalogue).
func (r *InvoiceRecord) ComputeTotals() {
	qty := decimal.NewFromInt(int64(r.Quantity))
	r.MontantHT = r.Product.PrixHT.Mul(qty).Round(2)
	r.MontantTTC = r.Product.PrixTTC.Mul(qty).Round(2)
	r.MontantTVA = r.MontantTTC.Sub(r.MontantHT)
}

// Delivered dit si l'email est parti (ou a pu partir) : au-delà de ce
// point le run n'est plus annulable ni rejouable côté envoi.
func (r *InvoiceRecord) Delivered() bool {
	return r.DeliveryStatus == DeliverySent || r.DeliveryStatus == DeliveryUnknown
}

// LedgerRow est la projection durable, en append-only, d'un InvoiceRecord
// terminé. Une ligne écrite n'est jamais modifiée : toute correction passe
// par une ligne compensatoire.
type LedgerRow struct {
	Numero        string
	Periode       string
	Date          string // JJ/MM/AAAA
	ClientID      string
	ClientNom     string
	ClientPrenom  string
	ProduitID     string
	Libelle       string
	Quantite      int
	MontantHT     decimal.Decimal
	MontantTVA    decimal.Decimal
	MontantTTC    decimal.Decimal
	LienDrive     string
	EmailEnvoyeA  string
	StatutEnvoi   string
}

// ToLedgerRow projette le record terminal en ligne de registre.
func (r *InvoiceRecord) ToLedgerRow() LedgerRow {
	return LedgerRow{
		Numero:       r.Number,
		Periode:      r.Period,
		Date:         r.IssuedAt.Format("02/01/2006"),
		ClientID:     r.Client.ID,
		ClientNom:    r.Client.Nom,
		ClientPrenom: r.Client.Prenom,
		ProduitID:    r.Product.ID,
		Libelle:      r.Product.Libelle,
		Quantite:     r.Quantity,
		MontantHT:    r.MontantHT,
		MontantTVA:   r.MontantTVA,
		MontantTTC:   r.MontantTTC,
		LienDrive:    r.ArchiveRef.Link,
		EmailEnvoyeA: r.Client.Mail,
		StatutEnvoi:  r.DeliveryStatus,
	}
}
