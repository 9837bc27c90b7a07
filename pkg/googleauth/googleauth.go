// Package googleauth construit le client HTTP authentifié auprès des
// API Google à partir des identifiants OAuth du cabinet. Le jeton est
// obtenu hors bande (premier consentement dans un navigateur) et stocké
// dans un fichier ; ce paquet ne fait que le relire et le rafraîchir.
package googleauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	gmail "google.golang.org/api/gmail/v1"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/aberthier/facturation-cabinet/internal/domain"
)

// scopes couvre exactement ce que le pipeline consomme : lecture et
// écriture du classeur, dépôt de fichiers, envoi de mails.
var scopes = []string{
	sheets.SpreadsheetsScope,
	drive.DriveFileScope,
	gmail.GmailSendScope,
}

// Client construit un http.Client authentifié depuis les fichiers
// credentials.json et token.json. Un jeton absent ou illisible remonte
// domain.ErrAuthExpired : l'opérateur doit refaire le consentement.
func Client(ctx context.Context, credentialsFile, tokenFile string) (*http.Client, error) {
	raw, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("lecture des identifiants %s: %w", credentialsFile, err)
	}

	cfg, err := google.ConfigFromJSON(raw, scopes...)
	if err != nil {
		return nil, fmt.Errorf("identifiants OAuth invalides: %w", err)
	}

	tok, err := readToken(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("jeton %s: %v: %w", tokenFile, err, domain.ErrAuthExpired)
	}

	return cfg.Client(ctx, tok), nil
}

// AuthURL renvoie l'URL de consentement à ouvrir dans un navigateur
// pour (ré)obtenir un jeton.
func AuthURL(credentialsFile string) (string, error) {
	raw, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", fmt.Errorf("lecture des identifiants %s: %w", credentialsFile, err)
	}
	cfg, err := google.ConfigFromJSON(raw, scopes...)
	if err != nil {
		return "", fmt.Errorf("identifiants OAuth invalides: %w", err)
	}
	return cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline), nil
}

// Exchange échange un code de consentement contre un jeton et l'écrit
// dans tokenFile.
func Exchange(ctx context.Context, credentialsFile, tokenFile, code string) error {
	raw, err := os.ReadFile(credentialsFile)
	if err != nil {
		return fmt.Errorf("lecture des identifiants %s: %w", credentialsFile, err)
	}
	cfg, err := google.ConfigFromJSON(raw, scopes...)
	if err != nil {
		return fmt.Errorf("identifiants OAuth invalides: %w", err)
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("échange du code de consentement: %w", err)
	}
	return writeToken(tokenFile, tok)
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func writeToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("écriture du jeton %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}
