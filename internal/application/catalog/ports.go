package catalog

import "context"

// Row est une ligne tabulaire indexée par en-tête (en-têtes déjà
// minusculisés et rognés par l'adaptateur).
type Row map[string]string

// TableReader est le port de lecture du classeur : registre clients et
// catalogue produits, externes et en lecture seule pour ce pipeline.
// preferred liste les noms d'onglets acceptés par ordre de préférence ;
// l'adaptateur retombe sur le premier onglet du classeur si aucun ne
// correspond.
type TableReader interface {
	ReadTable(ctx context.Context, preferred []string, columnRange string) ([]Row, error)
}
