package domain

import (
	"errors"
	"fmt"
)

// Erreurs de domaine (sans dépendances externes). L'orchestrateur est le
// seul endroit qui décide retry / abandon / succès partiel à partir de
// cette taxonomie.
var (
	// Non rejouables sans correction des données.
	ErrNotFound         = errors.New("ressource introuvable")
	ErrInvalidInput     = errors.New("entrée invalide")
	ErrUnparseablePrice = errors.New("prix illisible")
	ErrRenderFailed     = errors.New("échec de génération du PDF")

	// Rejouable en re-réservant un numéro.
	ErrNumberCollision = errors.New("collision de numéro de facture")

	// Transitoires, rejouables avec backoff borné.
	ErrArchiveUnavailable = errors.New("archive indisponible")
	ErrTransportFailure   = errors.New("erreur de transport mail")
	ErrLedgerUnavailable  = errors.New("registre des factures indisponible")

	// Fatales pour l'émission en cours, action opérateur requise.
	ErrArchiveRejected   = errors.New("archive refusée")
	ErrRecipientRejected = errors.New("destinataire refusé")
	ErrAuthExpired       = errors.New("authentification Google expirée")

	// Issue ambiguë : le transport a peut-être accepté le message.
	// Jamais rejouée automatiquement (risque de double envoi).
	ErrDeliveryAmbiguous = errors.New("issue d'envoi indéterminée")
)

// Retryable indique si l'erreur est transitoire et peut être retentée
// avec un backoff borné.
func Retryable(err error) bool {
	return errors.Is(err, ErrArchiveUnavailable) ||
		errors.Is(err, ErrTransportFailure) ||
		errors.Is(err, ErrLedgerUnavailable)
}

// StageFailure attache l'étape du pipeline à la cause d'échec. C'est la
// forme terminale remontée à l'opérateur : elle doit toujours permettre de
// dire quelle étape a échoué et si le client a pu recevoir le document.
type StageFailure struct {
	Stage string
	Err   error
}

func (f *StageFailure) Error() string {
	return fmt.Sprintf("étape %s: %v", f.Stage, f.Err)
}

func (f *StageFailure) Unwrap() error { return f.Err }

// FailureStage extrait l'étape d'un StageFailure, ou "" si err n'en est pas un.
func FailureStage(err error) string {
	var sf *StageFailure
	if errors.As(err, &sf) {
		return sf.Stage
	}
	return ""
}
