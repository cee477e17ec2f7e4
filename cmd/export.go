package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-miner/internal/export"
	"github.com/sells-group/lead-miner/pkg/notion"
	"github.com/sells-group/lead-miner/pkg/salesforce"
)

var exportCmd = &cobra.Command{
	Use:   "export <txt|csv|vcf|xlsx>",
	Short: "Export leads to a file",
	Long:  "Writes the filtered leads to leads_<filter>_<date>.<ext> in --dir. txt prints to stdout unless --dir is set.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(args[0])
		if err != nil {
			return err
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		filter := leadFilterFlags(cmd)
		leads := env.Manager.ListLeads(filter)

		dir, _ := cmd.Flags().GetString("dir")
		if format == export.FormatText && !cmd.Flags().Changed("dir") {
			return export.Write(os.Stdout, format, leads)
		}

		marker := filter.Niche
		if marker == "" {
			marker = filter.CampaignID
		}
		path, err := export.WriteFile(dir, format, marker, leads, time.Now())
		if err != nil {
			return eris.Wrap(err, "export")
		}
		fmt.Fprintf(os.Stdout, "Exported %d lead(s) to %s\n", len(leads), path)
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push leads into a CRM",
}

var pushNotionCmd = &cobra.Command{
	Use:   "notion",
	Short: "Create or update one page per lead in the Notion lead database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.Notion.Token == "" || cfg.Notion.LeadDB == "" {
			return eris.New("push notion: notion.token and notion.lead_db are required")
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		leads := env.Manager.ListLeads(leadFilterFlags(cmd))
		client := notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(cfg.Notion.RateLimit))
		sum, err := export.PushNotion(cmd.Context(), client, cfg.Notion.LeadDB, leads)
		if err != nil {
			return eris.Wrap(err, "push notion")
		}
		formatPush(os.Stdout, "Notion", sum)
		return nil
	},
}

var pushSalesforceCmd = &cobra.Command{
	Use:   "salesforce",
	Short: "Upsert leads into the Salesforce Lead object, matching by phone",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := salesforce.Connect(salesforce.Config{
			LoginURL:    cfg.Salesforce.LoginURL,
			Username:    cfg.Salesforce.Username,
			ClientID:    cfg.Salesforce.ClientID,
			KeyPath:     cfg.Salesforce.KeyPath,
			AccessToken: cfg.Salesforce.AccessToken,
			RateLimit:   cfg.Salesforce.RateLimit,
		})
		if err != nil {
			return eris.Wrap(err, "push salesforce")
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		filter := leadFilterFlags(cmd)
		leads := env.Manager.ListLeads(filter)
		city := ""
		if c, ok := env.Engine.CampaignByNiche(filter.Niche); ok && filter.Niche != "" {
			city = c.City
		}
		if c, ok := env.Engine.Campaign(filter.CampaignID); ok {
			city = c.City
		}

		sum, err := export.PushSalesforce(cmd.Context(), client, leads, city)
		if err != nil {
			return eris.Wrap(err, "push salesforce")
		}
		formatPush(os.Stdout, "Salesforce", sum)
		return nil
	},
}

func init() {
	addLeadFilterFlags(exportCmd)
	exportCmd.Flags().String("dir", ".", "output directory")
	addLeadFilterFlags(pushNotionCmd)
	addLeadFilterFlags(pushSalesforceCmd)

	pushCmd.AddCommand(pushNotionCmd, pushSalesforceCmd)
	rootCmd.AddCommand(exportCmd, pushCmd)
}
