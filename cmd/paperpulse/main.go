package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "paperpulse",
		Short:         "Collect research papers and rank them by engagement",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(collectCmd())
	root.AddCommand(rescoreCmd())
	root.AddCommand(rankCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func collectCmd() *cobra.Command {
	var (
		sources   []string
		date      string
		noRescore bool
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect papers and their citation and repository counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), sources, date, noRescore)
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "specific paper sources (arxiv, arxiv-rss)")
	cmd.Flags().StringVar(&date, "date", "", "snapshot date YYYY-MM-DD (default: today, UTC)")
	cmd.Flags().BoolVar(&noRescore, "no-rescore", false, "store counts without rescoring the snapshot")
	return cmd
}

func rescoreCmd() *cobra.Command {
	var (
		date string
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "rescore",
		Short: "Recompute engagement scores for stored snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRescore(cmd.Context(), date, all)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "snapshot date YYYY-MM-DD (default: today, UTC)")
	cmd.Flags().BoolVar(&all, "all", false, "rescore every stored snapshot")
	cmd.MarkFlagsMutuallyExclusive("date", "all")
	return cmd
}

func rankCmd() *cobra.Command {
	var (
		date       string
		category   string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Show papers ranked by engagement",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRank(cmd.Context(), date, category, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "snapshot date YYYY-MM-DD (default: latest)")
	cmd.Flags().StringVar(&category, "category", "", "only papers in this category (e.g. cs.LG)")
	cmd.Flags().IntVar(&limit, "limit", 20, "max papers to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
