package sheets

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	"github.com/aberthier/facturation-cabinet/internal/domain"
)

func TestParseLedgerRow(t *testing.T) {
	row := parseLedgerRow([]interface{}{
		"FACT-202405-0001", "202405", "15/05/2024",
		"C1", "Martin", "Sophie",
		"P1", "Consultation", "2",
		"200.00", "40.00", "240.00",
		"https://drive.example/x", "a@b.com", "ENVOYEE",
	})
	assert.Equal(t, "FACT-202405-0001", row.Numero)
	assert.Equal(t, 2, row.Quantite)
	assert.Equal(t, "240.00", row.MontantTTC.StringFixed(2))
	assert.Equal(t, "ENVOYEE", row.StatutEnvoi)
}

func TestParseLedgerRow_LigneManuelleTronquee(t *testing.T) {
	// Une ligne saisie à la main peut être incomplète ou illisible :
	// on la remonte sans erreur, montants à zéro.
	row := parseLedgerRow([]interface{}{"brouillon", "202405", "", "C1"})
	assert.Equal(t, "brouillon", row.Numero)
	assert.Equal(t, 0, row.Quantite)
	assert.True(t, row.MontantTTC.IsZero())
}

func TestClassify(t *testing.T) {
	transient := domain.ErrLedgerUnavailable

	err := classify(&googleapi.Error{Code: 503, Message: "backend error"}, transient)
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)

	err = classify(&googleapi.Error{Code: 429, Message: "rate limit"}, transient)
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)

	err = classify(&googleapi.Error{Code: 401, Message: "invalid credentials"}, transient)
	assert.ErrorIs(t, err, domain.ErrAuthExpired)

	// 4xx hors authentification : définitif, remonte tel quel.
	gerr := &googleapi.Error{Code: 400, Message: "bad request"}
	err = classify(gerr, transient)
	assert.False(t, errors.Is(err, domain.ErrLedgerUnavailable))

	// Erreur réseau sans réponse : passagère.
	err = classify(errors.New("connection reset"), transient)
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
}

func TestMissingRange(t *testing.T) {
	assert.True(t, missingRange(errors.New("googleapi: Error 400: Unable to parse range: 'factures'!A2:A")))
	assert.False(t, missingRange(errors.New("autre erreur")))
	assert.False(t, missingRange(nil))
}
