package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-miner/internal/lifecycle"
	"github.com/sells-group/lead-miner/internal/model"
)

var campaignsCmd = &cobra.Command{
	Use:   "campaigns",
	Short: "List saved campaigns",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		campaigns := env.Engine.Snapshot().Campaigns
		if len(campaigns) == 0 {
			fmt.Fprintln(os.Stderr, "No campaigns yet.")
			return nil
		}
		formatCampaigns(os.Stdout, campaigns)
		return nil
	},
}

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List niche folders with lead counts per status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		folders := env.Manager.Folders()
		if len(folders) == 0 {
			fmt.Fprintln(os.Stderr, "No folders yet.")
			return nil
		}
		formatFolders(os.Stdout, folders)
		return nil
	},
}

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		leads := env.Manager.ListLeads(leadFilterFlags(cmd))
		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}
		formatLeads(os.Stdout, leads)
		return nil
	},
}

// addLeadFilterFlags registers the flags read by leadFilterFlags.
func addLeadFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("niche", "", "folder (niche) to list")
	cmd.Flags().String("campaign", "", "campaign id")
	cmd.Flags().String("status", "", "lead status")
	cmd.Flags().String("neighborhood", "", "neighborhood")
	cmd.Flags().StringP("query", "q", "", "name search (tolerates typos)")
}

func leadFilterFlags(cmd *cobra.Command) lifecycle.LeadFilter {
	niche, _ := cmd.Flags().GetString("niche")
	campaign, _ := cmd.Flags().GetString("campaign")
	status, _ := cmd.Flags().GetString("status")
	neighborhood, _ := cmd.Flags().GetString("neighborhood")
	query, _ := cmd.Flags().GetString("query")
	return lifecycle.LeadFilter{
		Niche:        niche,
		CampaignID:   campaign,
		Status:       model.Status(status),
		Neighborhood: neighborhood,
		Query:        query,
	}
}

var setStatusCmd = &cobra.Command{
	Use:   "set-status <campaign-id> <lead-id> <status>",
	Short: "Change a lead's status",
	Long:  "Sets the workflow status of a lead: new, contacted, interested, closed, rejected, or outdated.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		key := model.LeadKey{CampaignID: args[0], ID: args[1]}
		lead, err := env.Manager.SetStatus(cmd.Context(), key, model.Status(args[2]))
		if err != nil {
			return eris.Wrap(err, "set status")
		}
		fmt.Fprintf(os.Stdout, "%s is now %s\n", lead.Name, lead.Status)
		return nil
	},
}

var contactCmd = &cobra.Command{
	Use:   "contact <campaign-id> <lead-id>",
	Short: "Print a lead's WhatsApp link and mark it contacted",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		url, err := env.Manager.OpenContact(cmd.Context(), model.LeadKey{CampaignID: args[0], ID: args[1]})
		if err != nil {
			return eris.Wrap(err, "contact")
		}
		fmt.Fprintln(os.Stdout, url)
		return nil
	},
}

var pitchCmd = &cobra.Command{
	Use:   "pitch <campaign-id> <lead-id>",
	Short: "Draft a first-contact message for a lead",
	Long:  "Asks the provider for a short WhatsApp pitch and saves it in the lead's notes.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		lead, err := env.Manager.GeneratePitch(cmd.Context(), cfg.ProviderSettings(), model.LeadKey{CampaignID: args[0], ID: args[1]})
		if err != nil {
			return eris.Wrap(err, "pitch")
		}
		fmt.Fprintln(os.Stdout, lead.Notes)
		return nil
	},
}

var deleteFolderCmd = &cobra.Command{
	Use:   "delete-folder <niche>",
	Short: "Delete every campaign of a niche with its leads",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Manager.DeleteFolder(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "delete folder")
		}
		fmt.Fprintf(os.Stdout, "Deleted folder %s: %d campaign(s), %d lead(s)\n", res.Niche, len(res.CampaignIDs), res.Leads)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Find and remove leads sharing a phone number",
	Long:  "Lists leads whose phone also belongs to a more recently seen lead. Nothing is deleted without --confirm. --campaign limits the scan to that campaign's folder, --niche to a folder by name.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if id, _ := cmd.Flags().GetString("campaign"); id != "" {
			if err := env.Manager.SelectCampaign(id); err != nil {
				return eris.Wrap(err, "cleanup")
			}
		}
		scope := env.Manager.ActiveScope()
		if niche, _ := cmd.Flags().GetString("niche"); niche != "" {
			scope.Niche = niche
		}
		confirm, _ := cmd.Flags().GetBool("confirm")

		res, err := env.Manager.CleanupDuplicates(cmd.Context(), scope, confirm)
		if err != nil {
			return eris.Wrap(err, "cleanup")
		}
		formatCleanup(os.Stdout, res, confirm)
		return nil
	},
}

func init() {
	addLeadFilterFlags(leadsCmd)
	cleanupCmd.Flags().String("campaign", "", "scan the folder of this campaign")
	cleanupCmd.Flags().String("niche", "", "scan this folder")
	cleanupCmd.Flags().Bool("confirm", false, "delete the duplicates found")

	rootCmd.AddCommand(campaignsCmd, foldersCmd, leadsCmd, setStatusCmd, contactCmd, pitchCmd, deleteFolderCmd, cleanupCmd)
}
