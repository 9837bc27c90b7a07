package entity

import "github.com/shopspring/decimal"

// Product représente une prestation du catalogue (onglet "produits").
// Les champs *Raw gardent le texte tel qu'écrit dans le classeur (pour
// l'affichage sur la facture) ; PrixHT / PrixTTC / TVARate sont les
// valeurs décimales normalisées utilisées pour tout calcul.
type Product struct {
	ID      string
	Libelle string

	// Texte brut du catalogue, affiché tel quel (après assainissement PDF).
	PrixHTRaw  string
	TVARaw     string
	PrixTTCRaw string

	// Valeurs exactes après normalisation.
	PrixHT  decimal.Decimal
	PrixTTC decimal.Decimal
	TVARate decimal.Decimal // fraction : 0.20 pour "20%"

	// Exonération de TVA (art. 261 du CGI, actes médicaux) : TTC == HT.
	TVAExempt bool
}
