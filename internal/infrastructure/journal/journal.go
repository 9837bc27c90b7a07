// Package journal persiste l'état local des émissions dans une base
// SQLite propre au poste de travail. Trois tables : les réservations de
// numéros (y compris les numéros brûlés par un échec), l'état du run à
// chaque transition, et le cache des octets PDF pour les reprises.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/aberthier/facturation-cabinet/internal/domain"
	"github.com/aberthier/facturation-cabinet/internal/domain/entity"
)

// migrations liste les instructions de schéma, exécutées une par une à
// l'ouverture (SQLite n'accepte qu'une instruction à la fois).
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS reservations (
		numero     TEXT PRIMARY KEY,
		run_id     TEXT NOT NULL,
		periode    TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_periode ON reservations(periode)`,

	`CREATE TABLE IF NOT EXISTS runs (
		run_id          TEXT PRIMARY KEY,
		numero          TEXT NOT NULL DEFAULT '',
		periode         TEXT NOT NULL,
		client_id       TEXT NOT NULL,
		client_nom      TEXT NOT NULL,
		client_prenom   TEXT NOT NULL,
		client_rue      TEXT NOT NULL,
		client_cp       TEXT NOT NULL,
		client_ville    TEXT NOT NULL,
		client_mail     TEXT NOT NULL,
		produit_id      TEXT NOT NULL,
		libelle         TEXT NOT NULL,
		prix_ht_brut    TEXT NOT NULL,
		tva_brut        TEXT NOT NULL,
		prix_ttc_brut   TEXT NOT NULL,
		prix_ht         TEXT NOT NULL,
		prix_ttc        TEXT NOT NULL,
		taux_tva        TEXT NOT NULL,
		tva_exoneree    INTEGER NOT NULL DEFAULT 0,
		quantite        INTEGER NOT NULL,
		notes           TEXT NOT NULL DEFAULT '',
		date_emission   TEXT NOT NULL,
		montant_ht      TEXT NOT NULL,
		montant_tva     TEXT NOT NULL,
		montant_ttc     TEXT NOT NULL,
		archive_id      TEXT NOT NULL DEFAULT '',
		lien_drive      TEXT NOT NULL DEFAULT '',
		statut_envoi    TEXT NOT NULL,
		etat            TEXT NOT NULL,
		etape_echec     TEXT NOT NULL DEFAULT '',
		cause_echec     TEXT NOT NULL DEFAULT '',
		updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_numero ON runs(numero)`,

	`CREATE TABLE IF NOT EXISTS pdfs (
		numero     TEXT PRIMARY KEY,
		contenu    BLOB NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`,
}

// Store implémente emission.Journal sur un fichier SQLite local.
type Store struct {
	db *sql.DB
}

// Open ouvre (ou crée) le fichier journal et applique le schéma.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ouverture du journal %s: %w", path, err)
	}
	// Un seul poste écrit à la fois ; une connexion évite les verrous croisés.
	db.SetMaxOpenConns(1)

	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration du journal: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close ferme la base sous-jacente.
func (s *Store) Close() error {
	return s.db.Close()
}

// MaxReservedSeq renvoie la plus grande séquence réservée localement pour
// la période, 0 si aucune. Les numéros brûlés comptent : une séquence
// réservée n'est jamais réutilisée.
func (s *Store) MaxReservedSeq(ctx context.Context, period string) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM reservations WHERE periode = ?`, period).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("lecture des réservations: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64), nil
}

// ReserveNumber journalise une réservation avant toute opération externe.
func (s *Store) ReserveNumber(ctx context.Context, runID, number, period string, seq int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reservations (numero, run_id, periode, seq) VALUES (?, ?, ?, ?)`,
		number, runID, period, seq)
	if err != nil {
		return fmt.Errorf("réservation du numéro %s: %w", number, err)
	}
	return nil
}

// SaveRun enregistre l'état courant du run, clé par run_id : un record
// est journalisé dès EN_ATTENTE, avant toute réservation de numéro, et
// deux runs sans numéro ne doivent jamais se confondre.
func (s *Store) SaveRun(ctx context.Context, rec *entity.InvoiceRecord) error {
	exempt := 0
	if rec.Product.TVAExempt {
		exempt = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, numero, periode,
			client_id, client_nom, client_prenom, client_rue, client_cp, client_ville, client_mail,
			produit_id, libelle, prix_ht_brut, tva_brut, prix_ttc_brut,
			prix_ht, prix_ttc, taux_tva, tva_exoneree,
			quantite, notes, date_emission,
			montant_ht, montant_tva, montant_ttc,
			archive_id, lien_drive, statut_envoi,
			etat, etape_echec, cause_echec, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(run_id) DO UPDATE SET
			numero       = excluded.numero,
			archive_id   = excluded.archive_id,
			lien_drive   = excluded.lien_drive,
			statut_envoi = excluded.statut_envoi,
			etat         = excluded.etat,
			etape_echec  = excluded.etape_echec,
			cause_echec  = excluded.cause_echec,
			updated_at   = datetime('now')
	`,
		rec.RunID, rec.Number, rec.Period,
		rec.Client.ID, rec.Client.Nom, rec.Client.Prenom, rec.Client.Rue,
		rec.Client.CodePostal, rec.Client.Ville, rec.Client.Mail,
		rec.Product.ID, rec.Product.Libelle,
		rec.Product.PrixHTRaw, rec.Product.TVARaw, rec.Product.PrixTTCRaw,
		rec.Product.PrixHT.String(), rec.Product.PrixTTC.String(), rec.Product.TVARate.String(), exempt,
		rec.Quantity, rec.Notes, rec.IssuedAt.Format(time.RFC3339),
		rec.MontantHT.String(), rec.MontantTVA.String(), rec.MontantTTC.String(),
		rec.ArchiveRef.ID, rec.ArchiveRef.Link, rec.DeliveryStatus,
		rec.State, rec.FailedStage, rec.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("enregistrement du run %s: %w", rec.Number, err)
	}
	return nil
}

// LoadRun recharge l'état d'un run par numéro de facture. Renvoie
// domain.ErrNotFound si le numéro est inconnu du poste.
func (s *Store) LoadRun(ctx context.Context, number string) (*entity.InvoiceRecord, error) {
	var (
		rec                            entity.InvoiceRecord
		exempt                         int
		issued                         string
		ht, ttc, rate, mht, mtva, mttc string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, periode,
			client_id, client_nom, client_prenom, client_rue, client_cp, client_ville, client_mail,
			produit_id, libelle, prix_ht_brut, tva_brut, prix_ttc_brut,
			prix_ht, prix_ttc, taux_tva, tva_exoneree,
			quantite, notes, date_emission,
			montant_ht, montant_tva, montant_ttc,
			archive_id, lien_drive, statut_envoi,
			etat, etape_echec, cause_echec
		FROM runs WHERE numero = ? ORDER BY updated_at DESC LIMIT 1
	`, number).Scan(
		&rec.RunID, &rec.Period,
		&rec.Client.ID, &rec.Client.Nom, &rec.Client.Prenom, &rec.Client.Rue,
		&rec.Client.CodePostal, &rec.Client.Ville, &rec.Client.Mail,
		&rec.Product.ID, &rec.Product.Libelle,
		&rec.Product.PrixHTRaw, &rec.Product.TVARaw, &rec.Product.PrixTTCRaw,
		&ht, &ttc, &rate, &exempt,
		&rec.Quantity, &rec.Notes, &issued,
		&mht, &mtva, &mttc,
		&rec.ArchiveRef.ID, &rec.ArchiveRef.Link, &rec.DeliveryStatus,
		&rec.State, &rec.FailedStage, &rec.FailureReason,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", number, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lecture du run %s: %w", number, err)
	}

	rec.Number = number
	rec.Product.TVAExempt = exempt == 1
	if rec.IssuedAt, err = time.Parse(time.RFC3339, issued); err != nil {
		return nil, fmt.Errorf("date d'émission du run %s: %w", number, err)
	}
	for _, f := range []struct {
		src string
		dst *decimal.Decimal
	}{
		{ht, &rec.Product.PrixHT}, {ttc, &rec.Product.PrixTTC}, {rate, &rec.Product.TVARate},
		{mht, &rec.MontantHT}, {mtva, &rec.MontantTVA}, {mttc, &rec.MontantTTC},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("montant du run %s: %w", number, err)
		}
		*f.dst = d
	}
	return &rec, nil
}

// SavePDF met en cache les octets du PDF rendu, pour que les reprises
// d'archivage ou d'envoi expédient exactement le document déjà produit.
func (s *Store) SavePDF(ctx context.Context, number string, pdf []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pdfs (numero, contenu) VALUES (?, ?)
		ON CONFLICT(numero) DO UPDATE SET contenu = excluded.contenu
	`, number, pdf)
	if err != nil {
		return fmt.Errorf("cache du PDF %s: %w", number, err)
	}
	return nil
}

// LoadPDF recharge les octets en cache ; domain.ErrNotFound si absents.
func (s *Store) LoadPDF(ctx context.Context, number string) ([]byte, error) {
	var pdf []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT contenu FROM pdfs WHERE numero = ?`, number).Scan(&pdf)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("PDF %s: %w", number, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lecture du PDF %s: %w", number, err)
	}
	return pdf, nil
}
