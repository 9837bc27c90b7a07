// Package numbering porte le format des numéros de facture, seul contrat
// d'échange exact du système : FACT-AAAAMM-#### où AAAAMM est la période
// d'émission et #### une séquence sur quatre chiffres, unique et
// strictement croissante dans la période.
package numbering

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/aberthier/facturation-cabinet/internal/domain"
)

const prefix = "FACT-"

var numberRe = regexp.MustCompile(`^FACT-(\d{6})-(\d{4})$`)

// Number est un numéro de facture structuré.
type Number struct {
	Period string // AAAAMM
	Seq    int    // 1..9999
}

// String rend la forme canonique FACT-AAAAMM-####.
func (n Number) String() string {
	return fmt.Sprintf("%s%s-%04d", prefix, n.Period, n.Seq)
}

// Parse n'accepte que la forme canonique exacte.
func Parse(s string) (Number, error) {
	m := numberRe.FindStringSubmatch(s)
	if m == nil {
		return Number{}, fmt.Errorf("numéro %q: %w", s, domain.ErrInvalidInput)
	}
	seq, _ := strconv.Atoi(m[2])
	return Number{Period: m[1], Seq: seq}, nil
}

// PeriodOf formate la période AAAAMM d'une date d'émission.
func PeriodOf(t time.Time) string {
	return t.Format("200601")
}

// SequencesIn extrait les séquences des numéros appartenant à period,
// en ignorant silencieusement tout ce qui ne respecte pas le format
// (le registre peut contenir des lignes saisies à la main).
func SequencesIn(numbers []string, period string) []int {
	var seqs []int
	for _, raw := range numbers {
		n, err := Parse(raw)
		if err != nil || n.Period != period {
			continue
		}
		seqs = append(seqs, n.Seq)
	}
	return seqs
}

// Next calcule le prochain numéro de la période : max(séquences)+1, ou
// 0001 pour la première facture d'une nouvelle période.
func Next(period string, seqs []int) Number {
	maxSeq := 0
	for _, s := range seqs {
		if s > maxSeq {
			maxSeq = s
		}
	}
	return Number{Period: period, Seq: maxSeq + 1}
}
