package entity

// Practice est l'identité du cabinet émetteur : chargée une fois au
// démarrage depuis la configuration, puis passée explicitement, jamais
// consultée comme état global.
type Practice struct {
	Name      string
	Address   string // peut contenir des "\n" littéraux venant du .env
	SIRET     string
	TVANumber string // n° TVA intracommunautaire, optionnel
	Email     string // adresse d'expédition du praticien
}
