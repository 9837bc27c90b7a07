package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	drive "google.golang.org/api/drive/v3"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/aberthier/facturation-cabinet/internal/application/catalog"
	"github.com/aberthier/facturation-cabinet/internal/application/emission"
	"github.com/aberthier/facturation-cabinet/internal/cli"
	"github.com/aberthier/facturation-cabinet/internal/domain/entity"
	infradrive "github.com/aberthier/facturation-cabinet/internal/infrastructure/drive"
	infragmail "github.com/aberthier/facturation-cabinet/internal/infrastructure/gmail"
	"github.com/aberthier/facturation-cabinet/internal/infrastructure/journal"
	"github.com/aberthier/facturation-cabinet/internal/infrastructure/pdf"
	infrasheets "github.com/aberthier/facturation-cabinet/internal/infrastructure/sheets"
	"github.com/aberthier/facturation-cabinet/pkg/config"
	"github.com/aberthier/facturation-cabinet/pkg/googleauth"
	"github.com/aberthier/facturation-cabinet/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("chargement de la configuration : " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// La commande de consentement doit fonctionner avant tout jeton et
	// avant toute configuration complète : elle s'exécute sans les
	// services Google.
	if len(os.Args) > 1 && os.Args[1] == "connexion" {
		cli.Execute(ctx, cli.Deps{
			Log:             log,
			CredentialsFile: cfg.Google.CredentialsFile,
			TokenFile:       cfg.Google.TokenFile,
		})
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("configuration")
	}

	httpClient, err := googleauth.Client(ctx, cfg.Google.CredentialsFile, cfg.Google.TokenFile)
	if err != nil {
		log.Fatal().Err(err).Msg("authentification Google ; lancer `facture connexion` si le jeton a expiré")
	}

	sheetsSvc, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		log.Fatal().Err(err).Msg("service Sheets")
	}
	driveSvc, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		log.Fatal().Err(err).Msg("service Drive")
	}
	gmailSvc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		log.Fatal().Err(err).Msg("service Gmail")
	}

	store, err := journal.Open(cfg.App.JournalPath)
	if err != nil {
		log.Fatal().Err(err).Msg("ouverture du journal local")
	}
	defer store.Close()

	practice := entity.Practice{
		Name:      cfg.Practice.Name,
		Address:   cfg.Practice.Address,
		SIRET:     cfg.Practice.SIRET,
		TVANumber: cfg.Practice.TVANumber,
		Email:     cfg.Practice.Email,
	}

	ledger := infrasheets.NewLedger(sheetsSvc, cfg.Google.SpreadsheetID)
	reader := infrasheets.NewTableReader(sheetsSvc, cfg.Google.SpreadsheetID)
	archive := infradrive.NewPublisher(driveSvc, cfg.Google.FolderID)
	mailer := infragmail.NewDispatcher(gmailSvc)
	renderer := pdf.NewRenderer(practice)

	catalogSvc := catalog.NewService(reader)
	authority := emission.NewNumberingAuthority(ledger, store)
	orchestrator := emission.NewOrchestrator(
		authority, renderer, archive, mailer, ledger, store,
		emission.Config{
			Practice:            practice,
			ComptableEmail:      cfg.Emission.ComptableEmail,
			MaxTransientRetries: uint64(cfg.Emission.MaxTransientRetries),
		},
		log,
	)

	cli.Execute(ctx, cli.Deps{
		Catalog:         catalogSvc,
		Orchestrator:    orchestrator,
		Log:             log,
		CredentialsFile: cfg.Google.CredentialsFile,
		TokenFile:       cfg.Google.TokenFile,
	})
}
