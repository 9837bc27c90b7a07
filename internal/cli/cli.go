// Package cli expose les commandes du poste de facturation. La couche
// interactive ne décide rien : elle collecte les entrées, pose les
// questions de confirmation et restitue l'issue du pipeline.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aberthier/facturation-cabinet/internal/application/catalog"
	"github.com/aberthier/facturation-cabinet/internal/application/emission"
	"github.com/aberthier/facturation-cabinet/internal/domain"
	"github.com/aberthier/facturation-cabinet/internal/domain/entity"
	"github.com/aberthier/facturation-cabinet/internal/domain/money"
	"github.com/aberthier/facturation-cabinet/pkg/googleauth"
	"github.com/aberthier/facturation-cabinet/pkg/logger"
)

// Deps regroupe les services injectés dans les commandes.
type Deps struct {
	Catalog      *catalog.Service
	Orchestrator *emission.Orchestrator
	Log          *logger.Logger

	// Fichiers OAuth, pour la commande de consentement.
	CredentialsFile string
	TokenFile       string
}

// NewRoot construit l'arbre de commandes du binaire facture.
func NewRoot(d Deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "facture",
		Short:         "Émission des factures du cabinet",
		Long:          "Émission des factures du cabinet : numérotation, PDF, archivage Drive, envoi Gmail et registre comptable.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newEmettreCmd(d))
	root.AddCommand(newReprendreCmd(d))
	root.AddCommand(newClientsCmd(d))
	root.AddCommand(newProduitsCmd(d))
	root.AddCommand(newConnexionCmd(d))
	return root
}

func newConnexionCmd(d Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "connexion [CODE]",
		Short: "Obtenir ou renouveler le consentement Google du compte praticien",
		Long: "Sans argument, affiche l'URL de consentement à ouvrir dans un navigateur.\n" +
			"Avec le code obtenu, l'échange contre un jeton et l'enregistre.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				url, err := googleauth.AuthURL(d.CredentialsFile)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Ouvrir cette URL dans un navigateur, puis relancer avec le code obtenu :")
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			}
			if err := googleauth.Exchange(cmd.Context(), d.CredentialsFile, d.TokenFile, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Jeton enregistré dans %s.\n", d.TokenFile)
			return nil
		},
	}
}

func newEmettreCmd(d Deps) *cobra.Command {
	var (
		clientID  string
		productID string
		qty       int
		notes     string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "emettre",
		Short: "Émettre une facture pour un client et une prestation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := d.Catalog.FindClient(ctx, clientID)
			if err != nil {
				return fmt.Errorf("client %s: %w", clientID, err)
			}
			product, err := d.Catalog.FindProduct(ctx, productID)
			if err != nil {
				return fmt.Errorf("produit %s: %w", productID, err)
			}

			// Porte de confirmation : une facture du même couple sur la
			// période courante existe peut-être déjà.
			if !force {
				prior, err := d.Orchestrator.PriorEmission(ctx, client.ID, product.ID)
				if err != nil {
					d.Log.Warn().Err(err).Msg("vérification des émissions antérieures impossible")
				} else if prior != nil {
					fmt.Fprintf(cmd.OutOrStdout(),
						"Une facture %s existe déjà pour %s / %s sur cette période (émise le %s).\n",
						prior.Numero, client.FullName(), product.Libelle, prior.Date)
					fmt.Fprintln(cmd.OutOrStdout(), "Relancer avec --force pour émettre malgré tout.")
					return fmt.Errorf("émission refusée sans --force: %w", domain.ErrInvalidInput)
				}
			}

			rec, err := d.Orchestrator.Emit(ctx, emission.EmitInput{
				Client:   client,
				Product:  product,
				Quantity: qty,
				Notes:    notes,
			})
			return report(cmd, rec, err)
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "Identifiant du client dans le classeur")
	cmd.Flags().StringVar(&productID, "produit", "", "Identifiant de la prestation dans le classeur")
	cmd.Flags().IntVar(&qty, "qte", 1, "Quantité facturée")
	cmd.Flags().StringVar(&notes, "notes", "", "Mention libre imprimée en pied de facture")
	cmd.Flags().BoolVar(&force, "force", false, "Émettre même si une facture du même couple existe sur la période")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("produit")
	return cmd
}

func newReprendreCmd(d Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "reprendre NUMERO",
		Short: "Reprendre une émission en échec depuis son étape fautive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := d.Orchestrator.Resume(cmd.Context(), args[0])
			return report(cmd, rec, err)
		},
	}
}

func newClientsCmd(d Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "Lister les clients du classeur",
		RunE: func(cmd *cobra.Command, args []string) error {
			clients, err := d.Catalog.Clients(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNOM\tPRENOM\tVILLE\tMAIL")
			for _, c := range clients {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Nom, c.Prenom, c.Ville, c.Mail)
			}
			return w.Flush()
		},
	}
}

func newProduitsCmd(d Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "produits",
		Short: "Lister les prestations du classeur",
		RunE: func(cmd *cobra.Command, args []string) error {
			products, err := d.Catalog.Products(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLIBELLE\tHT\tTVA\tTTC")
			for _, p := range products {
				tva := p.TVARaw
				if p.TVAExempt {
					tva = "exonérée"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					p.ID, p.Libelle, money.FormatEUR(p.PrixHT), tva, money.FormatEUR(p.PrixTTC))
			}
			return w.Flush()
		},
	}
}

// report restitue l'issue d'un run à l'opérateur. Le record est non-nil
// dès qu'un run a démarré, même en échec.
func report(cmd *cobra.Command, rec *entity.InvoiceRecord, err error) error {
	out := cmd.OutOrStdout()

	if err == nil {
		fmt.Fprintf(out, "Facture %s émise.\n", rec.Number)
		fmt.Fprintf(out, "  Montant TTC : %s\n", money.FormatEUR(rec.MontantTTC))
		fmt.Fprintf(out, "  Archive     : %s\n", rec.ArchiveRef.Link)
		fmt.Fprintf(out, "  Envoyée à   : %s\n", rec.Client.Mail)
		return nil
	}
	if rec == nil {
		return err
	}

	fmt.Fprintf(out, "Émission %s en échec à l'étape %s.\n", orEmpty(rec.Number, "(sans numéro)"), rec.FailedStage)
	fmt.Fprintf(out, "  Cause : %s\n", rec.FailureReason)

	switch {
	case rec.FailedStage == entity.StageLedger && rec.Delivered():
		fmt.Fprintln(out, "  La facture a été remise au client ; seule la ligne de registre manque.")
		fmt.Fprintf(out, "  Relancer : facture reprendre %s\n", rec.Number)
		fmt.Fprintln(out, "  Ou ajouter la ligne à la main dans l'onglet factures du classeur.")
	case rec.DeliveryStatus == entity.DeliveryUnknown:
		fmt.Fprintln(out, "  L'issue de l'envoi est indéterminée. Vérifier le dossier Envoyés")
		fmt.Fprintln(out, "  avant toute action ; aucun renvoi automatique ne sera tenté.")
	case rec.Number != "":
		fmt.Fprintf(out, "  Relancer : facture reprendre %s\n", rec.Number)
	}

	var sf *domain.StageFailure
	if errors.As(err, &sf) {
		return fmt.Errorf("étape %s: %w", sf.Stage, sf.Err)
	}
	return err
}

func orEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Execute lance l'arbre de commandes avec un contexte annulable.
func Execute(ctx context.Context, d Deps) {
	if err := NewRoot(d).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Erreur : %v\n", err)
		os.Exit(1)
	}
}
