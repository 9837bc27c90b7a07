// Package pdf implémente le rendu de la facture en A4 avec Maroto v2.
//
// Disposition de la page :
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  EN-TÊTE : nom du cabinet, adresse, SIRET, n° TVA           │
//	│  (mention d'exonération art. 261 CGI le cas échéant)        │
//	│  Facture n° FACT-AAAAMM-####   ·   Date : JJ/MM/AAAA        │
//	│  ─────────────────────────────────────────────────────────  │
//	│  CLIENT : prénom nom / rue / CP ville / mail                │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLE : Libellé | Qté | PU HT | TVA | Total HT | Total TTC │
//	│  TOTAUX : Total HT / TVA / Total TTC                        │
//	│  ─────────────────────────────────────────────────────────  │
//	│  Notes éventuelles + mentions de paiement                   │
//	└─────────────────────────────────────────────────────────────┘
//
// Le rendu est déterministe : la date de création du document est celle
// de l'émission (pas l'horloge du rendu) et tout texte libre passe par
// Sanitize. Re-rendre le même record produit des octets identiques, ce
// qui rend les reprises d'archivage idempotentes.
package pdf

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/aberthier/facturation-cabinet/internal/domain"
	"github.com/aberthier/facturation-cabinet/internal/domain/entity"
	"github.com/aberthier/facturation-cabinet/internal/domain/money"
)

// ── Palette ───────────────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// ── Renderer ──────────────────────────────────────────────────────────────────

// Renderer implémente emission.Renderer avec Maroto v2.
type Renderer struct {
	practice entity.Practice
}

// NewRenderer construit le moteur de rendu pour l'identité du cabinet.
func NewRenderer(practice entity.Practice) *Renderer {
	return &Renderer{practice: practice}
}

// Render produit le PDF complet, ou une erreur ErrRenderFailed sur record
// incomplet. Jamais de PDF partiel.
func (r *Renderer) Render(rec *entity.InvoiceRecord) ([]byte, error) {
	if err := validateRecord(rec); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(20).WithRightMargin(20).
		WithTopMargin(20).WithBottomMargin(20).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 10}).
		WithTitle("Facture "+rec.Number, true).
		WithAuthor(Sanitize(r.practice.Name), true).
		WithCreationDate(rec.IssuedAt).
		Build()

	m := maroto.New(cfg)

	for _, hr := range r.headerRows(rec) {
		m.AddRows(hr)
	}
	m.AddRows(line.NewRow(2, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(clientRows(rec.Client)...)
	m.AddRows(line.NewRow(2, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(itemHeaderRow(), itemRow(rec))
	m.AddRows(row.New(4))
	m.AddRows(totalsRows(rec)...)
	m.AddRows(footerRows(rec.Notes)...)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: générer le document: %v: %w", err, domain.ErrRenderFailed)
	}
	return pinModDate(doc.GetBytes(), rec.IssuedAt), nil
}

var modDateRe = regexp.MustCompile(`/ModDate \(D:\d+`)

// pinModDate réécrit l'entrée /ModDate du dictionnaire Info sur la date
// d'émission. Le moteur sous-jacent l'estampille avec l'horloge murale à
// chaque génération, seule source de variation entre deux rendus du même
// record ; la réécriture conserve la longueur (14 chiffres), les offsets
// de la table xref restent donc valides.
func pinModDate(pdf []byte, issuedAt time.Time) []byte {
	stamp := []byte("/ModDate (D:" + issuedAt.Format("20060102150405"))
	return modDateRe.ReplaceAll(pdf, stamp)
}

// validateRecord refuse tout record auquel il manque un champ requis.
func validateRecord(rec *entity.InvoiceRecord) error {
	missing := ""
	switch {
	case rec.Number == "":
		missing = "numéro de facture"
	case rec.IssuedAt.IsZero():
		missing = "date d'émission"
	case rec.Client.Nom == "" && rec.Client.Prenom == "":
		missing = "nom du client"
	case rec.Product.Libelle == "":
		missing = "libellé de la prestation"
	case rec.Quantity < 1:
		missing = "quantité"
	case !rec.MontantTTC.IsPositive():
		missing = "montant TTC"
	}
	if missing != "" {
		return fmt.Errorf("champ requis manquant (%s): %w", missing, domain.ErrRenderFailed)
	}
	return nil
}

// ── Sections ──────────────────────────────────────────────────────────────────

// headerRows : identité du cabinet puis numéro et date de la facture.
func (r *Renderer) headerRows(rec *entity.InvoiceRecord) []core.Row {
	rows := []core.Row{
		row.New(10).Add(col.New(12).Add(
			text.New(Sanitize(r.practice.Name), props.Text{
				Style: fontstyle.Bold, Size: 15, Color: colorPrimary, Top: 1,
			}),
		)),
	}

	// Le .env porte des "\n" littéraux dans l'adresse : une ligne par segment.
	for _, addrLine := range splitAddress(r.practice.Address) {
		rows = append(rows, row.New(5).Add(col.New(12).Add(
			text.New(Sanitize(addrLine), props.Text{Size: 9, Color: colorGray}),
		)))
	}
	if r.practice.SIRET != "" {
		rows = append(rows, row.New(5).Add(col.New(12).Add(
			text.New(Sanitize("SIRET : "+r.practice.SIRET), props.Text{Size: 9, Color: colorGray}),
		)))
	}
	if r.practice.TVANumber != "" {
		rows = append(rows, row.New(5).Add(col.New(12).Add(
			text.New(Sanitize("N° TVA intracom : "+r.practice.TVANumber), props.Text{Size: 9, Color: colorGray}),
		)))
	}
	if rec.Product.TVAExempt {
		rows = append(rows, row.New(5).Add(col.New(12).Add(
			text.New("Exonération de TVA (art. 261 du CGI - actes médicaux).", props.Text{
				Size: 8, Color: colorGray,
			}),
		)))
	}

	rows = append(rows,
		row.New(4),
		row.New(7).Add(
			col.New(7).Add(text.New("Facture n° "+Sanitize(rec.Number), props.Text{
				Style: fontstyle.Bold, Size: 11,
			})),
			col.New(5).Add(text.New("Date : "+rec.IssuedAt.Format("02/01/2006"), props.Text{
				Size: 10, Align: align.Right,
			})),
		),
	)
	return rows
}

// clientRows : bloc d'adresse du destinataire.
func clientRows(c entity.Client) []core.Row {
	lines := []string{
		c.FullName(),
		c.Rue,
		strings.TrimSpace(c.CodePostal + " " + c.Ville),
		c.Mail,
	}
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("Client", props.Text{Style: fontstyle.Bold, Size: 9, Color: colorPrimary, Top: 1}),
		)),
	}
	for _, l := range lines {
		if l == "" {
			continue
		}
		rows = append(rows, row.New(5).Add(col.New(12).Add(
			text.New(Sanitize(l), props.Text{Size: 10}),
		)))
	}
	return rows
}

// itemHeaderRow : en-tête de la table de la ligne de prestation.
func itemHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 9, Align: a, Color: colorPrimary, Top: 2,
		}))
	}
	return row.New(8).Add(
		h("Libellé", 4, align.Left),
		h("Qté", 1, align.Center),
		h("PU HT", 2, align.Right),
		h("TVA", 1, align.Center),
		h("Total HT", 2, align.Right),
		h("Total TTC", 2, align.Right),
	)
}

// itemRow : l'unique ligne de prestation. PU HT et TVA reprennent le
// texte du catalogue (assaini), les totaux sont calculés.
func itemRow(rec *entity.InvoiceRecord) core.Row {
	cell := func(s string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(s, props.Text{Size: 9, Align: a, Top: 1}))
	}
	return row.New(7).Add(
		cell(Sanitize(rec.Product.Libelle), 4, align.Left),
		cell(strconv.Itoa(rec.Quantity), 1, align.Center),
		cell(Sanitize(rec.Product.PrixHTRaw), 2, align.Right),
		cell(Sanitize(displayTVA(rec)), 1, align.Center),
		cell(money.FormatEUR(rec.MontantHT), 2, align.Right),
		cell(money.FormatEUR(rec.MontantTTC), 2, align.Right),
	)
}

func displayTVA(rec *entity.InvoiceRecord) string {
	if rec.Product.TVAExempt {
		return "0%"
	}
	return rec.Product.TVARaw
}

// totalsRows : bloc des totaux aligné à droite.
func totalsRows(rec *entity.InvoiceRecord) []core.Row {
	entry := func(label, value string, grand bool) core.Row {
		size := 9.0
		color := colorGray
		style := fontstyle.Normal
		if grand {
			size = 11
			color = colorPrimary
			style = fontstyle.Bold
		}
		return row.New(6).Add(
			col.New(7),
			col.New(3).Add(text.New(label, props.Text{
				Style: fontstyle.Bold, Size: size, Align: align.Right, Color: color, Right: 2,
			})),
			col.New(2).Add(text.New(value, props.Text{
				Style: style, Size: size, Align: align.Right, Color: color,
			})),
		)
	}
	return []core.Row{
		entry("Total HT", money.FormatEUR(rec.MontantHT), false),
		entry("TVA", money.FormatEUR(rec.MontantTVA), false),
		entry("Total TTC", money.FormatEUR(rec.MontantTTC), true),
	}
}

// footerRows : notes libres et mentions de paiement.
func footerRows(notes string) []core.Row {
	rows := []core.Row{row.New(6)}
	if notes != "" {
		rows = append(rows, row.New(5).Add(col.New(12).Add(
			text.New(Sanitize("Notes : "+notes), props.Text{Size: 8, Color: colorGray}),
		)))
	}
	rows = append(rows,
		row.New(5).Add(col.New(12).Add(
			text.New("Paiement comptant à réception. Facture émise électroniquement.", props.Text{
				Size: 8, Color: colorGray,
			}),
		)),
		row.New(5).Add(col.New(12).Add(
			text.New("Cette facture a été archivée dans votre espace sécurisé.", props.Text{
				Size: 8, Color: colorGray,
			}),
		)),
	)
	return rows
}

// splitAddress coupe l'adresse sur les "\n" littéraux et les vrais
// retours à la ligne.
func splitAddress(addr string) []string {
	if addr == "" {
		return nil
	}
	addr = strings.ReplaceAll(addr, `\n`, "\n")
	var lines []string
	for _, l := range strings.Split(addr, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
