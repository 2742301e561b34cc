package main

import (
	"fmt"
	"os"
	"path/filepath"

	"stress-detect-go/internal/model"

	"github.com/spf13/cobra"
)

func newWeightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Inspect or create model weight files",
	}

	var out string
	var seed uint64
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write freshly initialized (untrained) weights in the model file format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			net := model.New()
			net.Initialize(seed)
			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
			}
			if err := net.SaveFile(out); err != nil {
				return fmt.Errorf("failed to write weights: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d untrained parameters to %s\n", net.ParamCount(), out)
			fmt.Fprintln(cmd.OutOrStdout(), "The server keeps reporting synthetic scores until trained weights replace this file.")
			return nil
		},
	}
	initCmd.Flags().StringVarP(&out, "out", "o", "models/stress_detection_model.bin", "Output path")
	initCmd.Flags().Uint64Var(&seed, "seed", 1, "Initialization seed")

	var in string
	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Validate a weights file against the architecture and print the layer summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			net := model.New()
			if err := net.LoadFile(in); err != nil {
				return fmt.Errorf("invalid weights file: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), net.Summary())
			return nil
		},
	}
	inspectCmd.Flags().StringVarP(&in, "in", "i", "models/stress_detection_model.bin", "Weights file")

	cmd.AddCommand(initCmd, inspectCmd)
	return cmd
}
