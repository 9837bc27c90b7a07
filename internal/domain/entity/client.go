package entity

import "strings"

// Client représente une fiche du registre clients (onglet "clients" du
// classeur). Immuable pendant une émission : le registre est externe et
// en lecture seule pour ce pipeline.
type Client struct {
	ID         string
	Nom        string
	Prenom     string
	Rue        string
	CodePostal string
	Ville      string
	Mail       string
}

// FullName renvoie "Prénom Nom" pour les blocs d'adresse et les emails.
func (c Client) FullName() string {
	return strings.TrimSpace(c.Prenom + " " + c.Nom)
}
