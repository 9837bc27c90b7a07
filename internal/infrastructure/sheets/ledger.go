package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/aberthier/facturation-cabinet/internal/domain"
	"github.com/aberthier/facturation-cabinet/internal/domain/entity"
	"github.com/aberthier/facturation-cabinet/internal/domain/money"
)

const ledgerTab = "factures"

// Colonnes du registre, dans l'ordre d'écriture (A..O).
var ledgerHeader = []interface{}{
	"numero", "periode", "date",
	"client_id", "client_nom", "client_prenom",
	"produit_id", "libelle", "quantite",
	"montant_ht", "montant_tva", "montant_ttc",
	"lien_drive", "email_envoye_a", "statut_envoi",
}

// Ledger est l'onglet "factures" du classeur : strictement additif, une
// ligne écrite n'est jamais modifiée ni supprimée par ce pipeline.
// Implémente emission.Ledger.
type Ledger struct {
	svc           *sheetsapi.Service
	spreadsheetID string
}

// NewLedger construit le registre pour un classeur donné.
func NewLedger(svc *sheetsapi.Service, spreadsheetID string) *Ledger {
	return &Ledger{svc: svc, spreadsheetID: spreadsheetID}
}

// EnsureSchema crée l'onglet et sa ligne d'en-tête à la première
// utilisation. Sans effet si le schéma est déjà en place.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	res, err := l.svc.Spreadsheets.Values.
		Get(l.spreadsheetID, fmt.Sprintf("'%s'!A1:O1", ledgerTab)).
		Context(ctx).Do()
	if err == nil && len(res.Values) > 0 {
		return nil
	}

	titles, err := sheetTitles(ctx, l.svc, l.spreadsheetID)
	if err != nil {
		return err
	}
	if !containsFold(titles, ledgerTab) {
		_, err = l.svc.Spreadsheets.BatchUpdate(l.spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{
			Requests: []*sheetsapi.Request{{
				AddSheet: &sheetsapi.AddSheetRequest{
					Properties: &sheetsapi.SheetProperties{Title: ledgerTab},
				},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return classify(err, domain.ErrLedgerUnavailable)
		}
	}

	_, err = l.svc.Spreadsheets.Values.
		Update(l.spreadsheetID, fmt.Sprintf("'%s'!A1:O1", ledgerTab), &sheetsapi.ValueRange{
			Values: [][]interface{}{ledgerHeader},
		}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return classify(err, domain.ErrLedgerUnavailable)
	}
	return nil
}

// NumbersForPeriod renvoie la colonne numero brute. Un onglet encore
// absent équivaut à un registre vide (première facture).
func (l *Ledger) NumbersForPeriod(ctx context.Context, _ string) ([]string, error) {
	res, err := l.svc.Spreadsheets.Values.
		Get(l.spreadsheetID, fmt.Sprintf("'%s'!A2:A", ledgerTab)).
		Context(ctx).Do()
	if err != nil {
		if missingRange(err) {
			return nil, nil
		}
		return nil, classify(err, domain.ErrLedgerUnavailable)
	}
	numbers := make([]string, 0, len(res.Values))
	for _, row := range res.Values {
		if len(row) > 0 {
			numbers = append(numbers, strings.TrimSpace(asString(row[0])))
		}
	}
	return numbers, nil
}

// Append ajoute une ligne en bas de l'onglet.
func (l *Ledger) Append(ctx context.Context, row entity.LedgerRow) error {
	values := []interface{}{
		row.Numero, row.Periode, row.Date,
		row.ClientID, row.ClientNom, row.ClientPrenom,
		row.ProduitID, row.Libelle, strconv.Itoa(row.Quantite),
		row.MontantHT.StringFixed(2), row.MontantTVA.StringFixed(2), row.MontantTTC.StringFixed(2),
		row.LienDrive, row.EmailEnvoyeA, row.StatutEnvoi,
	}
	_, err := l.svc.Spreadsheets.Values.
		Append(l.spreadsheetID, fmt.Sprintf("'%s'!A2", ledgerTab), &sheetsapi.ValueRange{
			Values: [][]interface{}{values},
		}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return classify(err, domain.ErrLedgerUnavailable)
	}
	return nil
}

// LastRowFor renvoie la dernière ligne (client, produit, période), ou
// nil. Sert de porte de confirmation avant une re-facturation.
func (l *Ledger) LastRowFor(ctx context.Context, clientID, productID, period string) (*entity.LedgerRow, error) {
	res, err := l.svc.Spreadsheets.Values.
		Get(l.spreadsheetID, fmt.Sprintf("'%s'!A2:O", ledgerTab)).
		Context(ctx).Do()
	if err != nil {
		if missingRange(err) {
			return nil, nil
		}
		return nil, classify(err, domain.ErrLedgerUnavailable)
	}

	var found *entity.LedgerRow
	for _, raw := range res.Values {
		row := parseLedgerRow(raw)
		if row.ClientID == clientID && row.ProduitID == productID && row.Periode == period {
			r := row
			found = &r
		}
	}
	return found, nil
}

// parseLedgerRow remonte une ligne brute en LedgerRow. Tolérant : le
// registre peut contenir des lignes saisies à la main ; les montants
// illisibles restent à zéro.
func parseLedgerRow(raw []interface{}) entity.LedgerRow {
	get := func(i int) string {
		if i < len(raw) {
			return strings.TrimSpace(asString(raw[i]))
		}
		return ""
	}
	qty, _ := strconv.Atoi(get(8))
	return entity.LedgerRow{
		Numero:       get(0),
		Periode:      get(1),
		Date:         get(2),
		ClientID:     get(3),
		ClientNom:    get(4),
		ClientPrenom: get(5),
		ProduitID:    get(6),
		Libelle:      get(7),
		Quantite:     qty,
		MontantHT:    parseAmountOrZero(get(9)),
		MontantTVA:   parseAmountOrZero(get(10)),
		MontantTTC:   parseAmountOrZero(get(11)),
		LienDrive:    get(12),
		EmailEnvoyeA: get(13),
		StatutEnvoi:  get(14),
	}
}

func parseAmountOrZero(s string) decimal.Decimal {
	d, err := money.ParseAmount(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// missingRange reconnaît l'erreur renvoyée quand l'onglet n'existe pas
// encore : équivalent d'un registre vide, pas d'une indisponibilité.
func missingRange(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Unable to parse range")
}

func containsFold(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), want) {
			return true
		}
	}
	return false
}
