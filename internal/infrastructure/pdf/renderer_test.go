package pdf_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aberthier/facturation-cabinet/internal/domain"
	"github.com/aberthier/facturation-cabinet/internal/domain/entity"
	"github.com/aberthier/facturation-cabinet/internal/infrastructure/pdf"
)

func testPractice() entity.Practice {
	return entity.Practice{
		Name:      "Cabinet Berthier",
		Address:   `12 rue de la Paix\n75002 Paris`,
		SIRET:     "123 456 789 00012",
		TVANumber: "FR12345678901",
		Email:     "cabinet@example.fr",
	}
}

func testRecord() *entity.InvoiceRecord {
	d := func(s string) decimal.Decimal {
		v, _ := decimal.NewFromString(s)
		return v
	}
	rec := &entity.InvoiceRecord{
		Number: "FACT-202405-0001",
		Period: "202405",
		Client: entity.Client{
			ID: "C1", Nom: "Martin", Prenom: "Sophie",
			Rue: "12 rue des Lilas", CodePostal: "75011", Ville: "Paris",
			Mail: "sophie.martin@example.fr",
		},
		Product: entity.Product{
			ID: "P1", Libelle: "Consultation",
			PrixHTRaw: "100,00", TVARaw: "20%", PrixTTCRaw: "120,00",
			PrixHT: d("100.00"), PrixTTC: d("120.00"), TVARate: d("0.2"),
		},
		Quantity: 1,
		IssuedAt: time.Date(2024, time.May, 15, 9, 0, 0, 0, time.UTC),
	}
	rec.ComputeTotals()
	return rec
}

func TestRender_ProduitUnPDF(t *testing.T) {
	r := pdf.NewRenderer(testPractice())

	out, err := r.Render(testRecord())
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")), "doit être un document PDF")
}

func TestRender_DeterministeOctetAOctet(t *testing.T) {
	// La reprise de l'archivage republie les octets re-rendus : deux
	// rendus du même record doivent être identiques, même espacés dans
	// le temps.
	r := pdf.NewRenderer(testPractice())
	rec := testRecord()

	a, err := r.Render(rec)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	b, err := r.Render(rec)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b), "deux rendus du même record doivent être identiques")

	// Les dates du dictionnaire Info sont celles de l'émission, jamais
	// l'horloge du rendu.
	assert.Contains(t, string(a), "/CreationDate (D:20240515090000")
	assert.Contains(t, string(a), "/ModDate (D:20240515090000")
	assert.NotContains(t, string(a), "/ModDate (D:"+time.Now().Format("20060102"))
}

func TestRender_ChampRequisManquant(t *testing.T) {
	r := pdf.NewRenderer(testPractice())

	cases := map[string]func(*entity.InvoiceRecord){
		"sans numéro":  func(rec *entity.InvoiceRecord) { rec.Number = "" },
		"sans date":    func(rec *entity.InvoiceRecord) { rec.IssuedAt = time.Time{} },
		"sans client":  func(rec *entity.InvoiceRecord) { rec.Client.Nom, rec.Client.Prenom = "", "" },
		"sans libellé": func(rec *entity.InvoiceRecord) { rec.Product.Libelle = "" },
		"sans qté":     func(rec *entity.InvoiceRecord) { rec.Quantity = 0 },
		"TTC nul":      func(rec *entity.InvoiceRecord) { rec.MontantTTC = decimal.Zero },
	}
	for name, mutate := range cases {
		rec := testRecord()
		mutate(rec)
		out, err := r.Render(rec)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, domain.ErrRenderFailed, name)
		assert.Nil(t, out, "jamais de PDF partiel (%s)", name)
	}
}

func TestRender_ExonerationTVA(t *testing.T) {
	r := pdf.NewRenderer(testPractice())
	rec := testRecord()
	rec.Product.TVAExempt = true
	rec.Product.PrixTTC = rec.Product.PrixHT
	rec.ComputeTotals()

	out, err := r.Render(rec)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestRender_TexteExotiqueAssaini(t *testing.T) {
	r := pdf.NewRenderer(testPractice())
	rec := testRecord()
	rec.Client.Nom = "Đurić Mārtiņš"
	rec.Notes = "Séance du 5/12 — bilan ✓"

	out, err := r.Render(rec)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"simple", "simple"},
		{"déjà accentué", "déjà accentué"},                  // Windows-1252 couvre le français
		{"1 234,50 €", "1 234,50 €"},              // espaces insécables → espace
		{"Mārtiņš", "Martinš"},                              // ā et ņ repliés par NFKD ; š existe en 1252
		{"Đurić", "uric"},                                   // Đ n'a pas de décomposition : supprimé
		{"fin — ✓", "fin — "},                               // le tiret cadratin existe en 1252, la coche non
		{"œuvre", "œuvre"},                                  // œ existe en Windows-1252
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, pdf.Sanitize(tc.in), "entrée %q", tc.in)
	}
}

func TestSanitize_Deterministe(t *testing.T) {
	in := "Đurić Mārtiņš — ✓ œuvre n°42"
	assert.Equal(t, pdf.Sanitize(in), pdf.Sanitize(in))
}
