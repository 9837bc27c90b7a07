package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aberthier/facturation-cabinet/internal/application/catalog"
	"github.com/aberthier/facturation-cabinet/internal/domain"
)

// fakeReader sert des lignes en mémoire, indexées par le premier nom
// d'onglet préféré demandé.
type fakeReader struct {
	tables map[string][]catalog.Row
}

func (f *fakeReader) ReadTable(_ context.Context, preferred []string, _ string) ([]catalog.Row, error) {
	return f.tables[preferred[0]], nil
}

func newFakeReader() *fakeReader {
	return &fakeReader{tables: map[string][]catalog.Row{
		"clients": {
			{"id": "C1", "nom": "Martin", "prenom": "Sophie", "rue": "12 rue des Lilas",
				"code postal": "75011", "ville": "Paris", "mail": "sophie.martin@example.fr"},
			{"id": "C2", "nom": "Durand", "prenom": "Paul", "rue": "3 av. Hoche",
				"code postal": "69006", "ville": "Lyon", "mail": "p.durand@example.fr"},
		},
		"produits": {
			{"id": "P1", "libelle": "Consultation", "prix_ht": "100,00", "tva": "20%", "prix_ttc": "120,00"},
			{"id": "P2", "libelle": "Séance ostéopathie", "prix_ht": "60", "tva": "0%", "prix_ttc": ""},
			{"id": "P3", "libelle": "Bilan complet", "prix_ht": "1 234,50 €", "tva": "0", "prix_ttc": "1 234,50 €"},
		},
	}}
}

func TestFindClient(t *testing.T) {
	svc := catalog.NewService(newFakeReader())

	c, err := svc.FindClient(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, "Martin", c.Nom)
	assert.Equal(t, "sophie.martin@example.fr", c.Mail)
	assert.Equal(t, "Sophie Martin", c.FullName())

	_, err = svc.FindClient(context.Background(), "C99")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindProduct_NormaliseLesPrix(t *testing.T) {
	svc := catalog.NewService(newFakeReader())

	p, err := svc.FindProduct(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, "100.00", p.PrixHT.StringFixed(2))
	assert.Equal(t, "120.00", p.PrixTTC.StringFixed(2))
	assert.Equal(t, "0.2", p.TVARate.String())
	assert.False(t, p.TVAExempt)
	// Le texte brut du classeur est conservé pour l'affichage.
	assert.Equal(t, "100,00", p.PrixHTRaw)
	assert.Equal(t, "20%", p.TVARaw)
}

func TestFindProduct_ExonereDeTVA(t *testing.T) {
	svc := catalog.NewService(newFakeReader())

	// TTC absent : dérivé du HT (taux zéro → TTC == HT).
	p, err := svc.FindProduct(context.Background(), "P2")
	require.NoError(t, err)
	assert.True(t, p.TVAExempt)
	assert.Equal(t, "60.00", p.PrixTTC.StringFixed(2))

	// TTC présent et cohérent avec l'exonération.
	p, err = svc.FindProduct(context.Background(), "P3")
	require.NoError(t, err)
	assert.True(t, p.TVAExempt)
	assert.Equal(t, "1234.50", p.PrixTTC.StringFixed(2))
}

func TestFindProduct_TTCIncoherentEchoue(t *testing.T) {
	r := newFakeReader()
	r.tables["produits"] = append(r.tables["produits"],
		catalog.Row{"id": "P4", "libelle": "Erroné", "prix_ht": "100,00", "tva": "20%", "prix_ttc": "119,00"})
	svc := catalog.NewService(r)

	_, err := svc.FindProduct(context.Background(), "P4")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFindProduct_PrixIllisibleEchoue(t *testing.T) {
	r := newFakeReader()
	r.tables["produits"] = append(r.tables["produits"],
		catalog.Row{"id": "P5", "libelle": "Illisible", "prix_ht": "cent euros", "tva": "20%"})
	svc := catalog.NewService(r)

	_, err := svc.FindProduct(context.Background(), "P5")
	assert.ErrorIs(t, err, domain.ErrUnparseablePrice)
}

func TestProducts_ListeComplete(t *testing.T) {
	svc := catalog.NewService(newFakeReader())
	products, err := svc.Products(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 3)
}
