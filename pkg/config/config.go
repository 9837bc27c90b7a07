package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config regroupe la configuration de l'application (lecture via Viper
// depuis l'environnement et optionnellement un fichier).
type Config struct {
	App      AppConfig
	Practice PracticeConfig
	Google   GoogleConfig
	Emission EmissionConfig
}

// AppConfig configuration générale de l'application.
type AppConfig struct {
	Env         string // development, production
	LogLevel    string
	JournalPath string // fichier SQLite du journal d'émission local
}

// PracticeConfig identité du cabinet, imprimée en en-tête des factures.
type PracticeConfig struct {
	Name      string
	Address   string // lignes séparées par "\n" littéral
	SIRET     string
	TVANumber string
	Email     string // compte praticien, expéditeur des factures
}

// GoogleConfig accès aux services Google du cabinet.
type GoogleConfig struct {
	CredentialsFile string // credentials.json OAuth de l'application
	TokenFile       string // token.json obtenu au premier consentement
	FolderID        string // dossier Drive d'archivage des PDF
	SpreadsheetID   string // classeur des clients, produits et factures
}

// EmissionConfig réglages du pipeline d'émission.
type EmissionConfig struct {
	ComptableEmail      string // copie systématique des envois ; vide = pas de copie
	MaxTransientRetries int
}

// Validate vérifie les champs sans défaut raisonnable.
func (c *Config) Validate() error {
	missing := []string{}
	if c.Google.FolderID == "" {
		missing = append(missing, "GOOGLE_FOLDER_ID")
	}
	if c.Google.SpreadsheetID == "" {
		missing = append(missing, "ACCOUNTING_SPREADSHEET_ID")
	}
	if c.Practice.Name == "" {
		missing = append(missing, "PRACTICE_NAME")
	}
	if c.Practice.Email == "" {
		missing = append(missing, "PRACTITIONER_EMAIL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("configuration incomplète: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Load lit la configuration depuis les variables d'environnement (et
// optionnellement un fichier .env). Les env vars ont priorité.
func Load() (*Config, error) {
	v := viper.New()

	// Optionnel : fichier .env au répertoire courant
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // on ignore l'erreur si absent

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:         getString(v, "APP_ENV", "development"),
			LogLevel:    getString(v, "LOG_LEVEL", "info"),
			JournalPath: getString(v, "JOURNAL_PATH", "facturation.db"),
		},
		Practice: PracticeConfig{
			Name:      getString(v, "PRACTICE_NAME", ""),
			Address:   getString(v, "PRACTICE_ADDRESS", ""),
			SIRET:     getString(v, "PRACTICE_SIRET", ""),
			TVANumber: getString(v, "PRACTICE_TVA_NUMBER", ""),
			Email:     getString(v, "PRACTITIONER_EMAIL", ""),
		},
		Google: GoogleConfig{
			CredentialsFile: getString(v, "GOOGLE_CREDENTIALS_FILE", "credentials.json"),
			TokenFile:       getString(v, "GOOGLE_TOKEN_FILE", "token.json"),
			FolderID:        getString(v, "GOOGLE_FOLDER_ID", ""),
			SpreadsheetID:   getString(v, "ACCOUNTING_SPREADSHEET_ID", ""),
		},
		Emission: EmissionConfig{
			ComptableEmail:      getString(v, "COMPTABLE_EMAIL", ""),
			MaxTransientRetries: getInt(v, "MAX_TRANSIENT_RETRIES", 3),
		},
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}
