package emission

import (
	"context"
	"fmt"

	"github.com/aberthier/facturation-cabinet/internal/domain"
	"github.com/aberthier/facturation-cabinet/internal/domain/numbering"
)

// NumberingAuthority délivre le prochain numéro de facture d'une période
// à partir des lignes existantes du registre partagé et des réservations
// locales déjà journalisées.
//
// Le registre n'offre aucune primitive de verrouillage : deux sessions
// opérateur peuvent calculer le même numéro. La parade est en deux temps :
// la réservation est journalisée localement (un numéro réservé n'est
// jamais redélivré par ce poste, même si l'émission échoue : il est
// brûlé), et Revalidate relit le registre juste avant le rendu pour
// détecter la réservation concurrente d'un autre poste.
type NumberingAuthority struct {
	ledger  Ledger
	journal Journal
}

// NewNumberingAuthority construit l'autorité de numérotation.
func NewNumberingAuthority(ledger Ledger, journal Journal) *NumberingAuthority {
	return &NumberingAuthority{ledger: ledger, journal: journal}
}

// ReserveNext calcule max(séquence)+1 sur la période (registre et
// journal local confondus), journalise la réservation et renvoie le
// numéro formaté. Première facture d'une nouvelle période : 0001.
func (a *NumberingAuthority) ReserveNext(ctx context.Context, runID, period string) (numbering.Number, error) {
	raw, err := a.ledger.NumbersForPeriod(ctx, period)
	if err != nil {
		return numbering.Number{}, fmt.Errorf("lecture des numéros de la période %s: %w", period, err)
	}
	next := numbering.Next(period, numbering.SequencesIn(raw, period))

	reserved, err := a.journal.MaxReservedSeq(ctx, period)
	if err != nil {
		return numbering.Number{}, fmt.Errorf("journal local, période %s: %w", period, err)
	}
	if reserved >= next.Seq {
		next.Seq = reserved + 1
	}

	if err := a.journal.ReserveNumber(ctx, runID, next.String(), period, next.Seq); err != nil {
		return numbering.Number{}, fmt.Errorf("réservation de %s: %w", next, err)
	}
	return next, nil
}

// Revalidate vérifie que le numéro réservé est toujours absent du
// registre, immédiatement avant que le rendu ne le consomme. Retourne
// domain.ErrNumberCollision si un autre poste l'a pris entre temps.
func (a *NumberingAuthority) Revalidate(ctx context.Context, n numbering.Number) error {
	raw, err := a.ledger.NumbersForPeriod(ctx, n.Period)
	if err != nil {
		return fmt.Errorf("revalidation de %s: %w", n, err)
	}
	want := n.String()
	for _, existing := range raw {
		if existing == want {
			return fmt.Errorf("numéro %s déjà présent dans le registre: %w", want, domain.ErrNumberCollision)
		}
	}
	return nil
}
