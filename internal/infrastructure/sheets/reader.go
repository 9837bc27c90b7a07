// Package sheets adapte le classeur Google Sheets partagé aux ports du
// pipeline : lecture du registre clients et du catalogue produits, et
// registre des factures en append-only.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/aberthier/facturation-cabinet/internal/application/catalog"
	"github.com/aberthier/facturation-cabinet/internal/domain"
)

// classify traduit une erreur de l'API Sheets dans la taxonomie du
// domaine : transient regroupe les indisponibilités passagères.
func classify(err error, transient error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401:
			return fmt.Errorf("%v: %w", gerr.Message, domain.ErrAuthExpired)
		case gerr.Code == 429 || gerr.Code >= 500:
			return fmt.Errorf("%v: %w", gerr.Message, transient)
		}
		return err
	}
	if err != nil {
		// Erreur réseau sans réponse HTTP : passagère par nature.
		return fmt.Errorf("%v: %w", err, transient)
	}
	return nil
}

// TableReader lit une table (en-têtes en première ligne) dans un onglet
// du classeur. Implémente catalog.TableReader.
type TableReader struct {
	svc           *sheetsapi.Service
	spreadsheetID string
}

// NewTableReader construit le lecteur pour un classeur donné.
func NewTableReader(svc *sheetsapi.Service, spreadsheetID string) *TableReader {
	return &TableReader{svc: svc, spreadsheetID: spreadsheetID}
}

// ReadTable localise l'onglet (noms préférés, repli sur le premier) et
// mappe chaque ligne par nom de colonne minusculisé.
func (r *TableReader) ReadTable(ctx context.Context, preferred []string, columnRange string) ([]catalog.Row, error) {
	title, err := pickSheetTitle(ctx, r.svc, r.spreadsheetID, preferred, true)
	if err != nil {
		return nil, err
	}

	a1 := fmt.Sprintf("'%s'!%s", title, columnRange)
	res, err := r.svc.Spreadsheets.Values.Get(r.spreadsheetID, a1).Context(ctx).Do()
	if err != nil {
		return nil, classify(err, domain.ErrLedgerUnavailable)
	}
	if len(res.Values) < 2 {
		return nil, nil
	}

	headers := make([]string, len(res.Values[0]))
	for i, h := range res.Values[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(asString(h)))
	}

	rows := make([]catalog.Row, 0, len(res.Values)-1)
	for _, raw := range res.Values[1:] {
		row := catalog.Row{}
		for i, h := range headers {
			if i < len(raw) {
				row[h] = strings.TrimSpace(asString(raw[i]))
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// sheetTitles renvoie les titres d'onglets du classeur.
func sheetTitles(ctx context.Context, svc *sheetsapi.Service, spreadsheetID string) ([]string, error) {
	meta, err := svc.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, classify(err, domain.ErrLedgerUnavailable)
	}
	titles := make([]string, 0, len(meta.Sheets))
	for _, s := range meta.Sheets {
		if s.Properties != nil {
			titles = append(titles, s.Properties.Title)
		}
	}
	return titles, nil
}

// pickSheetTitle choisit le premier onglet dont le nom correspond (sans
// casse) à un nom préféré, avec repli optionnel sur le premier onglet.
func pickSheetTitle(ctx context.Context, svc *sheetsapi.Service, spreadsheetID string, preferred []string, fallback bool) (string, error) {
	titles, err := sheetTitles(ctx, svc, spreadsheetID)
	if err != nil {
		return "", err
	}
	norm := make(map[string]string, len(titles))
	for _, t := range titles {
		norm[strings.ToLower(strings.TrimSpace(t))] = t
	}
	for _, p := range preferred {
		if t, ok := norm[strings.ToLower(strings.TrimSpace(p))]; ok {
			return t, nil
		}
	}
	if fallback && len(titles) > 0 {
		return titles[0], nil
	}
	return "", fmt.Errorf("aucun onglet parmi %v (disponibles: %v): %w", preferred, titles, domain.ErrNotFound)
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
