package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chatforge/nlukit/pkg/types"
)

var (
	exportType   string
	exportOutput string
)

// newExportCommand creates the 'export' subcommand.
func newExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the knowledge base as a Rasa-format dataset",
		Long: `Export the knowledge base as a Rasa-format dataset.

Annotated samples of the selected type are rendered as common examples with
their entity annotations, alongside lookup tables for keyword and trait
entities and synonym mappings drawn from value expressions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			dataset, err := a.dataset.Build(cmd.Context(), types.SampleType(exportType))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if exportOutput != "" {
				f, err := os.Create(exportOutput)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", exportOutput, err)
				}
				defer f.Close()
				out = f
			}

			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(dataset)
		},
	}

	cmd.Flags().StringVarP(&exportType, "type", "t", "train", "Sample type to export (train, test)")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write the dataset to a file instead of stdout")
	return cmd
}

// newTrainCommand creates the 'train' subcommand.
func newTrainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train the external NLU provider on the current knowledge base",
		Long: `Train the external NLU provider on the current knowledge base.

Exports the training samples as a dataset, pushes it to the configured
provider and, on success, marks the exported samples as trained.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			p, err := a.provider()
			if err != nil {
				return err
			}

			dataset, err := a.dataset.Build(cmd.Context(), types.SampleTrain)
			if err != nil {
				return err
			}

			if err := p.Train(cmd.Context(), dataset); err != nil {
				return err
			}

			updated, err := a.store.Samples().MarkTrained(cmd.Context(), types.SampleTrain, true)
			if err != nil {
				return err
			}

			a.logger.Info().Int("samples", updated).Str("provider", p.Name()).
				Msg("training started")
			fmt.Fprintf(cmd.OutOrStdout(), "trained %d samples on %s\n", updated, p.Name())
			return nil
		},
	}
}

// newEvaluateCommand creates the 'evaluate' subcommand.
func newEvaluateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate the trained model against held-out test samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			p, err := a.provider()
			if err != nil {
				return err
			}

			dataset, err := a.dataset.Build(cmd.Context(), types.SampleTest)
			if err != nil {
				return err
			}

			report, err := p.Evaluate(cmd.Context(), dataset)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(report)
		},
	}
}

// newParseCommand creates the 'parse' subcommand.
func newParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <text>",
		Short: "Run NLU inference over free text",
		Long: `Run NLU inference over free text.

Sends the text to the configured provider and re-scores each returned
entity by its stored weight before printing the result.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			p, err := a.provider()
			if err != nil {
				return err
			}

			result, err := p.Parse(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			scored, err := a.scorer.ComputeScores(cmd.Context(), result.Entities)
			if err != nil {
				return err
			}
			result.Entities = scored

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		},
	}
}
