// Package catalog charge le registre clients et le catalogue produits
// depuis le classeur partagé, et normalise les prix texte en décimaux
// exacts avant toute utilisation par le pipeline d'émission.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aberthier/facturation-cabinet/internal/domain"
	"github.com/aberthier/facturation-cabinet/internal/domain/entity"
	"github.com/aberthier/facturation-cabinet/internal/domain/money"
)

var (
	clientTabs  = []string{"clients", "BDD client"}
	productTabs = []string{"produits"}
)

// Valeurs de la colonne tva qui signifient "exonéré" (art. 261 du CGI).
var exemptTVAValues = map[string]bool{
	"0": true, "0%": true, "0.0": true, "0.00": true, "0,0": true, "0,00": true,
}

// Service lit et normalise les deux jeux de données externes.
type Service struct {
	reader TableReader
}

// NewService construit le service de catalogue.
func NewService(reader TableReader) *Service {
	return &Service{reader: reader}
}

// Clients renvoie toutes les fiches du registre clients.
func (s *Service) Clients(ctx context.Context) ([]entity.Client, error) {
	rows, err := s.reader.ReadTable(ctx, clientTabs, "A1:G")
	if err != nil {
		return nil, fmt.Errorf("lecture du registre clients: %w", err)
	}
	clients := make([]entity.Client, 0, len(rows))
	for _, r := range rows {
		clients = append(clients, entity.Client{
			ID:         r["id"],
			Nom:        r["nom"],
			Prenom:     r["prenom"],
			Rue:        r["rue"],
			CodePostal: r["code postal"],
			Ville:      r["ville"],
			Mail:       r["mail"],
		})
	}
	return clients, nil
}

// FindClient cherche une fiche par identifiant.
func (s *Service) FindClient(ctx context.Context, id string) (entity.Client, error) {
	clients, err := s.Clients(ctx)
	if err != nil {
		return entity.Client{}, err
	}
	for _, c := range clients {
		if c.ID == id {
			return c, nil
		}
	}
	return entity.Client{}, fmt.Errorf("client id=%s: %w", id, domain.ErrNotFound)
}

// Products renvoie le catalogue entier, prix normalisés.
func (s *Service) Products(ctx context.Context) ([]entity.Product, error) {
	rows, err := s.reader.ReadTable(ctx, productTabs, "A1:E")
	if err != nil {
		return nil, fmt.Errorf("lecture du catalogue produits: %w", err)
	}
	products := make([]entity.Product, 0, len(rows))
	for _, r := range rows {
		p, err := normalizeProduct(r)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

// FindProduct cherche une prestation par identifiant et la normalise.
func (s *Service) FindProduct(ctx context.Context, id string) (entity.Product, error) {
	rows, err := s.reader.ReadTable(ctx, productTabs, "A1:E")
	if err != nil {
		return entity.Product{}, fmt.Errorf("lecture du catalogue produits: %w", err)
	}
	for _, r := range rows {
		if r["id"] != id {
			continue
		}
		return normalizeProduct(r)
	}
	return entity.Product{}, fmt.Errorf("produit id=%s: %w", id, domain.ErrNotFound)
}

// normalizeProduct convertit une ligne brute du catalogue en Product aux
// montants exacts, et vérifie l'invariant prix_ttc == prix_ht * (1 + tva)
// arrondi à deux chiffres. Un TTC absent du classeur est dérivé ; un TTC
// présent mais incohérent fait échouer la normalisation.
func normalizeProduct(r Row) (entity.Product, error) {
	p := entity.Product{
		ID:         r["id"],
		Libelle:    r["libelle"],
		PrixHTRaw:  strings.TrimSpace(r["prix_ht"]),
		TVARaw:     strings.TrimSpace(r["tva"]),
		PrixTTCRaw: strings.TrimSpace(r["prix_ttc"]),
	}

	ht, err := money.ParseAmount(p.PrixHTRaw)
	if err != nil {
		return entity.Product{}, fmt.Errorf("produit id=%s, prix_ht: %w", p.ID, err)
	}
	p.PrixHT = ht

	p.TVAExempt = p.TVARaw == "" || exemptTVAValues[p.TVARaw]
	if !p.TVAExempt {
		rate, err := money.ParseRate(p.TVARaw)
		if err != nil {
			return entity.Product{}, fmt.Errorf("produit id=%s, tva: %w", p.ID, err)
		}
		p.TVARate = rate
	}

	expected := ht.Mul(decimal.NewFromInt(1).Add(p.TVARate)).Round(2)
	if p.PrixTTCRaw == "" {
		p.PrixTTC = expected
		return p, nil
	}

	ttc, err := money.ParseAmount(p.PrixTTCRaw)
	if err != nil {
		return entity.Product{}, fmt.Errorf("produit id=%s, prix_ttc: %w", p.ID, err)
	}
	if !ttc.Equal(expected) {
		return entity.Product{}, fmt.Errorf(
			"produit id=%s: prix_ttc %s incohérent avec prix_ht %s et tva %s (attendu %s): %w",
			p.ID, ttc.StringFixed(2), ht.StringFixed(2), p.TVARaw, expected.StringFixed(2),
			domain.ErrInvalidInput,
		)
	}
	p.PrixTTC = ttc
	return p, nil
}
