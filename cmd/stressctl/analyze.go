package main

import (
	"encoding/json"
	"fmt"
	"os"

	"stress-detect-go/internal/app"
	"stress-detect-go/internal/core/models"

	"github.com/spf13/cobra"
)

type analyzeOptions struct {
	out       string
	subject   string
	withImage bool
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Estimate the stress level of every face in an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			pipeline, err := app.NewPipeline(cfg)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			res, procErr := pipeline.Processor.ProcessBytes(cmd.Context(), data, opts.subject)
			if err := writeAnalysis(cmd, res, opts); err != nil {
				return err
			}
			if procErr != nil {
				return fmt.Errorf("analysis failed (%s): %w", res.ErrorCode, procErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Write the annotated JPEG to this path")
	cmd.Flags().StringVarP(&opts.subject, "subject", "s", "", "Subject id (keeps synthetic scores stable per subject)")
	cmd.Flags().BoolVar(&opts.withImage, "with-image", false, "Include the annotated image as data URI in the JSON output")
	return cmd
}

// writeAnalysis schreibt das Ergebnis als JSON und optional das annotierte Bild
func writeAnalysis(cmd *cobra.Command, res *models.DetectionResult, opts *analyzeOptions) error {
	if res == nil {
		return nil
	}
	if opts.out != "" && res.AnnotatedImage != nil {
		if err := os.WriteFile(opts.out, res.AnnotatedImage.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write annotated image: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Annotated image written to %s\n", opts.out)
	}

	printed := *res
	if !opts.withImage {
		printed.AnnotatedImage = nil
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(printed)
}
