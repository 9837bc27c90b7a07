package pdf

import (
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// Sanitize restreint un texte libre au jeu de glyphes du moteur de rendu
// (Windows-1252, celui des polices standard du PDF) pour éviter les
// carrés noirs sur les caractères exotiques. Déterministe : même entrée,
// même sortie, donc les re-rendus d'un même record restent identiques
// octet à octet.
//
// Règles :
//   - espaces insécables U+00A0 et fines U+202F → espace simple ;
//   - caractère encodable en Windows-1252 → conservé tel quel ;
//   - sinon, décomposition NFKD et conservation des caractères de base
//     encodables (ā → a), les diacritiques orphelins étant éliminés ;
//   - tout résidu non encodable est supprimé.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', ' ':
			b.WriteByte(' ')
			continue
		}
		if _, ok := charmap.Windows1252.EncodeRune(r); ok {
			b.WriteRune(r)
			continue
		}
		for _, d := range norm.NFKD.String(string(r)) {
			if unicode.Is(unicode.Mn, d) {
				continue
			}
			if _, ok := charmap.Windows1252.EncodeRune(d); ok {
				b.WriteRune(d)
			}
		}
	}
	return b.String()
}
