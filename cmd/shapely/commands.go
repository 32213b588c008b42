package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skosovsky/shapely"
	"github.com/skosovsky/shapely/internal/blackboard"
)

func newAskCmd(a *app) *cobra.Command {
	var (
		shape  string
		params map[string]string
		system string
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the model for a value of the given shape",
		Long: `Asks a single question and prints the validated answer as JSON.

Placeholders like $animal in the question are filled from --param flags.

Example:
  shapely ask --shape "number" --param animal=duck 'How many legs does a $animal have?'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stop, err := a.serveMetrics(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			client := a.client()
			if system != "" {
				client.SetContext(system)
			}
			question := strings.Join(args, " ")
			a.logger.Info("Asking", zap.String("question", question), zap.String("shape", shape))

			v, err := client.Ask(cmd.Context(), question, toParams(params), shape)
			if err != nil {
				a.logger.Error("Ask failed", zap.Error(err))
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		},
	}
	cmd.Flags().StringVarP(&shape, "shape", "s", "string", "answer shape, e.g. \"number the age in years\"")
	cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "placeholder value (key=value), repeatable")
	cmd.Flags().StringVar(&system, "system", "", "system context prepended to the question")
	return cmd
}

func newSchemaCmd(_ *app) *cobra.Command {
	var wire bool
	cmd := &cobra.Command{
		Use:   "schema [shape]",
		Short: "Print the JSON Schema a shape normalizes to",
		Long: `Normalizes a shape written in the DSL and prints its JSON Schema.

With --wire the schema is printed the way it is sent as function parameters:
non-object shapes are wrapped in {"response": ...}.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := shapely.Normalize(shapely.Text(strings.Join(args, " ")))
			if wire {
				s, _ = shapely.WrapResponse(s)
			}
			return printJSON(cmd.OutOrStdout(), s.JSONSchema())
		},
	}
	cmd.Flags().BoolVar(&wire, "wire", false, "print the function-parameter form")
	return cmd
}

func newBlackboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "blackboard [word]",
		Short: "Let the model spell a word on a blackboard, one call per letter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stop, err := a.serveMetrics(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			word, err := blackboard.Spell(cmd.Context(), a.client(), args[0])
			if err != nil {
				a.logger.Error("Run failed", zap.String("blackboard", word), zap.Error(err))
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), word)
			return err
		},
	}
}

func toParams(in map[string]string) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
