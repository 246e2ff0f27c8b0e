package commands

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"allblue-backend/lib/scrapers/collectr"
	"allblue-backend/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	scrapeURL     *string
	scrapeOut     *string
	scrapeTimeout *time.Duration
)

func init() {
	scrapeURL = rootCmd.PersistentFlags().String("url", "", "Override the listing page url.")
	scrapeOut = rootCmd.PersistentFlags().String("out", "", "Override the output catalog file.")
	scrapeTimeout = rootCmd.PersistentFlags().Duration("timeout", time.Minute*3, "Deadline for the headless browser session.")

	rootCmd.AddCommand(donsCmd)
	rootCmd.AddCommand(sealedCmd)
}

var donsCmd = &cobra.Command{
	Use:   "dons",
	Short: "Scrapes don card listings into dons_collectr.json.",
	Run: func(cmd *cobra.Command, args []string) {
		scrape(cmd, collectr.DefaultDonsURL, "don", "dons_collectr.json")
	},
}

var sealedCmd = &cobra.Command{
	Use:   "sealed",
	Short: "Scrapes sealed product listings into sealed_collectr.json.",
	Run: func(cmd *cobra.Command, args []string) {
		scrape(cmd, collectr.DefaultSealedURL, "sealed", "sealed_collectr.json")
	},
}

func scrape(cmd *cobra.Command, defaultURL, prefix, defaultOut string) {
	url := *scrapeURL
	if url == "" {
		url = defaultURL
	}
	out := *scrapeOut
	if out == "" {
		out = defaultOut
	}

	t1 := time.Now()
	entries, err := collectr.Scrape(cmd.Context(), collectr.ScrapeOptions{
		URL:     url,
		Timeout: *scrapeTimeout,
	})
	if err != nil {
		serviceutil.Fatal("failed to scrape listing", err)
	}
	slog.Info("scraping time", "seconds", time.Since(t1).Seconds(), "items", len(entries))

	err = collectr.SaveCatalog(out, prefix, entries)
	if errors.Is(err, collectr.ErrEmptyScrape) {
		slog.Warn("scrape came back empty, keeping the previous catalog", "out", out)
		os.Exit(1)
	}
	if err != nil {
		serviceutil.Fatal("failed to save catalog", err)
	}

	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.AppendHeader(table.Row{"Name", "USD", "EUR"})
	for _, e := range entries {
		w.AppendRow(table.Row{e.Name, e.USD, e.EUR})
	}
	w.AppendFooter(table.Row{"saved to " + out, "", ""})
	w.Render()
}
