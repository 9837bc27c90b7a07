// Package emission orchestre le pipeline d'émission d'une facture :
// numérotation, rendu, archivage, envoi, journalisation. Cinq effets de
// bord dépendants sur trois systèmes externes, sans transaction commune.
// Le pipeline est une saga strictement progressive dont chaque étape est
// idempotente par numéro de facture.
package emission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/aberthier/facturation-cabinet/internal/domain"
	"github.com/aberthier/facturation-cabinet/internal/domain/entity"
	"github.com/aberthier/facturation-cabinet/internal/domain/numbering"
	"github.com/aberthier/facturation-cabinet/pkg/logger"
)

// Ordre des étapes ; la reprise démarre à l'étape en échec, jamais avant.
const (
	iNumbering = iota
	iRender
	iArchive
	iDelivery
	iLedger
)

var stages = []string{
	iNumbering: entity.StageNumbering,
	iRender:    entity.StageRender,
	iArchive:   entity.StageArchive,
	iDelivery:  entity.StageDelivery,
	iLedger:    entity.StageLedger,
}

var stageIdx = map[string]int{
	entity.StageNumbering: iNumbering,
	entity.StageRender:    iRender,
	entity.StageArchive:   iArchive,
	entity.StageDelivery:  iDelivery,
	entity.StageLedger:    iLedger,
}

// Config regroupe l'identité du cabinet, le contact comptable et la
// politique de retry de l'orchestrateur.
type Config struct {
	Practice       entity.Practice
	ComptableEmail string

	// MaxCollisionRetries borne les re-réservations après collision.
	MaxCollisionRetries int
	// MaxTransientRetries borne les nouvelles tentatives après une
	// erreur transitoire (archive, registre), en plus de l'essai initial.
	MaxTransientRetries uint64
	// InitialBackoff est l'intervalle initial du backoff exponentiel.
	InitialBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxCollisionRetries == 0 {
		c.MaxCollisionRetries = 3
	}
	if c.MaxTransientRetries == 0 {
		c.MaxTransientRetries = 3
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
}

// EmitInput est la demande d'émission fournie par la couche interactive.
type EmitInput struct {
	Client   entity.Client
	Product  entity.Product
	Quantity int
	Notes    string
}

// Orchestrator séquence le pipeline et détient seul la politique
// échec / retry / succès partiel. Une seule émission à la fois par
// session ; le run va au bout ou échoue explicitement.
type Orchestrator struct {
	authority *NumberingAuthority
	renderer  Renderer
	archive   Archive
	mailer    Mailer
	ledger    Ledger
	journal   Journal
	cfg       Config
	log       *logger.Logger
	now       func() time.Time
}

// NewOrchestrator construit l'orchestrateur avec toutes ses dépendances.
func NewOrchestrator(
	authority *NumberingAuthority,
	renderer Renderer,
	archive Archive,
	mailer Mailer,
	ledger Ledger,
	journal Journal,
	cfg Config,
	log *logger.Logger,
) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		authority: authority,
		renderer:  renderer,
		archive:   archive,
		mailer:    mailer,
		ledger:    ledger,
		journal:   journal,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// WithClock remplace l'horloge (tests).
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// PriorEmission renvoie la dernière ligne du registre pour le même
// couple (client, produit) sur la période courante, ou nil. La couche
// interactive s'en sert comme porte de confirmation avant une
// re-facturation délibérée.
func (o *Orchestrator) PriorEmission(ctx context.Context, clientID, productID string) (*entity.LedgerRow, error) {
	return o.ledger.LastRowFor(ctx, clientID, productID, numbering.PeriodOf(o.now()))
}

// Emit exécute une émission complète : EN_ATTENTE → NUMERO_RESERVE →
// RENDUE → ARCHIVEE → ENVOYEE → JOURNALISEE. Le record retourné est
// toujours non-nil dès qu'un run a démarré, y compris en échec ; la
// couche interactive y lit l'étape fautive et le statut d'envoi.
func (o *Orchestrator) Emit(ctx context.Context, in EmitInput) (*entity.InvoiceRecord, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	now := o.now()
	rec := &entity.InvoiceRecord{
		RunID:          uuid.NewString(),
		Period:         numbering.PeriodOf(now),
		Client:         in.Client,
		Product:        in.Product,
		Quantity:       in.Quantity,
		Notes:          in.Notes,
		IssuedAt:       now,
		DeliveryStatus: entity.DeliveryNotSent,
		State:          entity.StateIdle,
	}
	rec.ComputeTotals()
	o.save(ctx, rec)

	o.log.Info().
		Str("run_id", rec.RunID).
		Str("client", rec.Client.ID).
		Str("produit", rec.Product.ID).
		Str("periode", rec.Period).
		Msg("démarrage d'une émission")

	return o.runFrom(ctx, rec, entity.StageNumbering)
}

// Resume reprend un run depuis son étape en échec (ou l'étape suivant
// la dernière franchie, si le processus a été interrompu). Le numéro
// réservé et les octets déjà rendus sont réutilisés. Refuse de rejouer
// l'envoi quand l'issue précédente est indéterminée, et tout run déjà
// journalisé.
func (o *Orchestrator) Resume(ctx context.Context, number string) (*entity.InvoiceRecord, error) {
	rec, err := o.journal.LoadRun(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("chargement du run %s: %w", number, err)
	}
	if rec.State == entity.StateLogged {
		return rec, fmt.Errorf("émission %s déjà journalisée: %w", number, domain.ErrInvalidInput)
	}

	stage := o.resumeStage(rec)
	if stage <= iDelivery && rec.DeliveryStatus == entity.DeliveryUnknown {
		return rec, fmt.Errorf(
			"l'envoi de %s a une issue indéterminée, vérifier le dossier Envoyés avant d'agir: %w",
			number, domain.ErrDeliveryAmbiguous)
	}

	o.log.Info().
		Str("numero", number).
		Str("etape", stageName(stage)).
		Msg("reprise d'une émission")

	return o.runFrom(ctx, rec, stageName(stage))
}

// resumeStage détermine l'étape de redémarrage d'un run non terminé.
func (o *Orchestrator) resumeStage(rec *entity.InvoiceRecord) int {
	if rec.State == entity.StateFailed {
		return stageIdx[rec.FailedStage]
	}
	// Run interrompu sans état terminal : on repart après la dernière
	// étape franchie.
	switch rec.State {
	case entity.StateIdle:
		return iNumbering
	case entity.StateNumberReserved:
		return iRender
	case entity.StateRendered:
		return iArchive
	case entity.StateArchived:
		return iDelivery
	case entity.StateDelivered:
		return iLedger
	}
	return iNumbering
}

func stageName(idx int) string {
	if idx < 0 || idx >= len(stages) {
		return entity.StageNumbering
	}
	return stages[idx]
}

// runFrom exécute les étapes à partir de from, incluse.
func (o *Orchestrator) runFrom(ctx context.Context, rec *entity.InvoiceRecord, from string) (*entity.InvoiceRecord, error) {
	start := stageIdx[from]
	var pdf []byte

	// ── Numérotation : réservation + revalidation anti-collision ─────
	// La revalidation n'a de sens qu'avant un rendu : au-delà, le PDF
	// porte déjà le numéro.
	if start <= iRender {
		if err := o.reserveValidated(ctx, rec); err != nil {
			return o.fail(ctx, rec, entity.StageNumbering, err)
		}
	}

	// ── Rendu ─────────────────────────────────────────────────────────
	if start <= iRender {
		var err error
		pdf, err = o.renderer.Render(rec)
		if err != nil {
			return o.fail(ctx, rec, entity.StageRender, err)
		}
		if err := o.journal.SavePDF(ctx, rec.Number, pdf); err != nil {
			o.log.Warn().Err(err).Str("numero", rec.Number).Msg("cache PDF non écrit, reprise impossible sans re-rendu")
		}
		rec.State = entity.StateRendered
		o.save(ctx, rec)
	} else if start <= iDelivery {
		// Reprise après rendu : octets en cache, sinon re-rendu (le
		// rendu est déterministe, les octets sont identiques).
		var err error
		pdf, err = o.journal.LoadPDF(ctx, rec.Number)
		if err != nil {
			pdf, err = o.renderer.Render(rec)
			if err != nil {
				return o.fail(ctx, rec, entity.StageRender, err)
			}
		}
	}

	// ── Archivage : idempotent par numéro, retry borné ────────────────
	if start <= iArchive {
		err := o.retryTransient(ctx, func() error {
			ref, aerr := o.archive.Publish(ctx, pdf, rec.Number, FileName(rec))
			if aerr == nil {
				rec.ArchiveRef = ref
			}
			return aerr
		})
		if err != nil {
			return o.fail(ctx, rec, entity.StageArchive, err)
		}
		rec.State = entity.StateArchived
		o.save(ctx, rec)
	}

	// ── Envoi : un seul essai, jamais rejoué automatiquement ──────────
	if start <= iDelivery && !rec.Delivered() {
		msg := composeMail(rec, o.cfg.Practice, o.cfg.ComptableEmail)
		msg.Attachment = pdf
		err := o.mailer.Send(ctx, msg)
		switch {
		case err == nil:
			rec.DeliveryStatus = entity.DeliverySent
			rec.State = entity.StateDelivered
			o.save(ctx, rec)
		case errors.Is(err, domain.ErrDeliveryAmbiguous):
			rec.DeliveryStatus = entity.DeliveryUnknown
			return o.fail(ctx, rec, entity.StageDelivery, err)
		default:
			rec.DeliveryStatus = entity.DeliveryNotSent
			return o.fail(ctx, rec, entity.StageDelivery, err)
		}
	}

	// ── Journalisation : le registre est la source des numéros ────────
	if err := o.retryTransient(ctx, func() error {
		if serr := o.ledger.EnsureSchema(ctx); serr != nil {
			return serr
		}
		return o.ledger.Append(ctx, rec.ToLedgerRow())
	}); err != nil {
		// Succès partiel : le client a reçu le document, seule la ligne
		// de registre manque. L'opérateur peut reprendre cette étape ou
		// ajouter la ligne à la main.
		return o.fail(ctx, rec, entity.StageLedger, err)
	}
	rec.State = entity.StateLogged
	o.save(ctx, rec)

	o.log.Info().
		Str("numero", rec.Number).
		Str("lien", rec.ArchiveRef.Link).
		Msg("émission terminée")
	return rec, nil
}

// reserveValidated garantit un numéro réservé ET toujours absent du
// registre partagé au moment où le rendu va le consommer. En cas de
// collision le numéro courant est brûlé (la réservation journalisée
// reste) et un nouveau est réservé, dans la limite configurée.
func (o *Orchestrator) reserveValidated(ctx context.Context, rec *entity.InvoiceRecord) error {
	collisions := 0
	for {
		if rec.Number == "" {
			var n numbering.Number
			err := o.retryTransient(ctx, func() error {
				var rerr error
				n, rerr = o.authority.ReserveNext(ctx, rec.RunID, rec.Period)
				return rerr
			})
			if err != nil {
				return err
			}
			rec.Number = n.String()
			rec.State = entity.StateNumberReserved
			o.save(ctx, rec)
		}

		n, err := numbering.Parse(rec.Number)
		if err != nil {
			return err
		}
		err = o.retryTransient(ctx, func() error {
			return o.authority.Revalidate(ctx, n)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrNumberCollision) && collisions < o.cfg.MaxCollisionRetries {
			collisions++
			o.log.Warn().
				Str("numero", rec.Number).
				Int("tentative", collisions).
				Msg("collision de numéro, numéro brûlé, re-réservation")
			rec.Number = ""
			continue
		}
		return err
	}
}

// retryTransient exécute fn avec un backoff exponentiel borné, mais
// uniquement pour les erreurs transitoires de la taxonomie ; tout le
// reste est définitif et remonte immédiatement.
func (o *Orchestrator) retryTransient(ctx context.Context, fn func() error) error {
	op := func() error {
		err := fn()
		if err != nil && !domain.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.cfg.InitialBackoff
	return backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(eb, o.cfg.MaxTransientRetries), ctx))
}

func (o *Orchestrator) fail(ctx context.Context, rec *entity.InvoiceRecord, stage string, cause error) (*entity.InvoiceRecord, error) {
	rec.State = entity.StateFailed
	rec.FailedStage = stage
	rec.FailureReason = cause.Error()
	o.save(ctx, rec)
	o.log.Error().
		Str("etape", stage).
		Str("numero", rec.Number).
		Str("statut_envoi", rec.DeliveryStatus).
		Err(cause).
		Msg("émission en échec")
	return rec, &domain.StageFailure{Stage: stage, Err: cause}
}

// save persiste l'état du run dans le journal local. Un journal
// inaccessible ne doit pas interrompre un run en cours : on trace et on
// continue, la reprise sera simplement moins informée.
func (o *Orchestrator) save(ctx context.Context, rec *entity.InvoiceRecord) {
	if err := o.journal.SaveRun(ctx, rec); err != nil {
		o.log.Warn().Err(err).Str("run_id", rec.RunID).Msg("écriture du journal local en échec")
	}
}

func validateInput(in EmitInput) error {
	switch {
	case in.Client.ID == "":
		return fmt.Errorf("client sans identifiant: %w", domain.ErrInvalidInput)
	case in.Client.Mail == "":
		return fmt.Errorf("client %s sans adresse mail: %w", in.Client.ID, domain.ErrInvalidInput)
	case in.Product.ID == "" || in.Product.Libelle == "":
		return fmt.Errorf("produit incomplet: %w", domain.ErrInvalidInput)
	case in.Quantity < 1:
		return fmt.Errorf("quantité %d: %w", in.Quantity, domain.ErrInvalidInput)
	}
	return nil
}
