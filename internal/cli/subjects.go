package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"trivia-room-service/internal/config"
	"trivia-room-service/internal/logger"
)

// NewSubjectsCmd loads the question catalog and prints what rooms can be created for.
func NewSubjectsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "subjects",
		Short: "List question subjects and their sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger.Setup(cfg.Log.Level, cfg.Log.Pretty)

			d, err := openDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SUBJECT\tQUESTIONS\tSTATUS")
			for _, info := range d.bank.Subjects() {
				status := "ok"
				if info.Placeholder {
					status = "placeholder"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\n", info.Subject, info.Questions, status)
			}
			return w.Flush()
		},
	}
}
