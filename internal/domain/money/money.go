// Package money normalise les représentations textuelles hétérogènes des
// prix du catalogue (formats FR / US / CH, symbole €, espaces insécables)
// en décimaux exacts à deux chiffres. Fonctions pures, exercées sans I/O.
package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/aberthier/facturation-cabinet/internal/domain"
)

var (
	junkRe    = regexp.MustCompile(`[^\d.,+-]`)
	integerRe = regexp.MustCompile(`^[+-]?\d+$`)

	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// ParseAmount parse un montant en décimal à deux chiffres.
//
// Règle héritée du classeur : le séparateur décimal est celui (',' ou '.')
// le plus à droite ; l'autre est un séparateur de milliers. Les espaces
// (dont U+00A0 et U+202F), apostrophes et symboles monétaires sont ignorés.
// Tout résidu non numérique fait échouer le parse avec ErrUnparseablePrice.
func ParseAmount(raw string) (decimal.Decimal, error) {
	d, err := parseDecimal(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Round(2), nil
}

// ParseRate parse un taux de TVA en fraction : "20%" → 0.20, "5,5%" →
// 0.055. Sans symbole %, une valeur supérieure à 1 est lue en
// pourcentage ("20" → 0.20), sinon comme fraction déjà réduite ("0,2").
func ParseRate(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	percent := strings.Contains(trimmed, "%")

	d, err := parseDecimal(strings.ReplaceAll(trimmed, "%", ""))
	if err != nil {
		return decimal.Zero, err
	}
	if percent || d.GreaterThan(one) {
		return d.Div(hundred), nil
	}
	return d, nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	s := norm.NFKC.String(strings.TrimSpace(raw))
	s = strings.NewReplacer(
		"€", "",
		" ", "",
		" ", "", // NBSP
		" ", "", // espace fine insécable
		"’", "",
		"'", "",
	).Replace(s)
	s = junkRe.ReplaceAllString(s, "")

	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrUnparseablePrice, raw)
	}
	if integerRe.MatchString(s) {
		return mustParse(s, raw)
	}

	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")
	switch {
	case commas == 1 && dots == 0:
		s = strings.Replace(s, ",", ".", 1)
	case dots == 1 && commas == 0:
		// déjà en forme canonique
	case strings.LastIndex(s, ".") > strings.LastIndex(s, ","):
		// le point est décimal, les virgules des milliers
		s = strings.ReplaceAll(s, ",", "")
	default:
		// la virgule est décimale, les points des milliers
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	return mustParse(s, raw)
}

func mustParse(s, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrUnparseablePrice, raw)
	}
	return d, nil
}

// FormatEUR rend un montant au format français : "1 234,50 €".
func FormatEUR(d decimal.Decimal) string {
	fixed := d.StringFixed(2)
	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	parts := strings.SplitN(fixed, ".", 2)
	intPart, fracPart := parts[0], parts[1]

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(c)
	}
	b.WriteByte(',')
	b.WriteString(fracPart)
	b.WriteString(" €")
	return b.String()
}
