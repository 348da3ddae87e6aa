package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/okian/exodetect/internal/domain/types"
)

// errNoModel is returned by artifacts when neither model could be loaded.
var errNoModel = errors.New("no model could be loaded")

func newArtifactsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "artifacts",
		Short: "Load the model artifacts and report each slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := setup(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			svc, err := startService(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Stop()

			h := svc.Health()
			printHealth(cmd.OutOrStdout(), h)
			if h.Status != types.StatusHealthy {
				return errNoModel
			}
			return nil
		},
	}
}

func printHealth(w io.Writer, h types.Health) {
	fmt.Fprintf(w, "status: %s\n", h.Status)
	for _, a := range h.Artifacts {
		icon := "✓"
		switch a.State {
		case "missing":
			icon = "-"
		case "failed":
			icon = "✗"
		}
		fmt.Fprintf(w, "  %s  [%s] %s", icon, a.Artifact, a.State)
		if a.Location != "" {
			fmt.Fprintf(w, "  %s", a.Location)
		}
		if a.Error != "" {
			fmt.Fprintf(w, "  (%s)", a.Error)
		}
		fmt.Fprintln(w)
	}
}
