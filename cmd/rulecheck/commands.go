package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/liamcoop/offerrules/internal/logger"
	"github.com/liamcoop/offerrules/rules"
)

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:          "rulecheck",
		Short:        "Evaluate and validate offer rule fixtures",
		SilenceUsage: true,
	}
	// Diagnostics are printed by the commands; logging goes to stderr
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return logger.Setup(context.Background(), logger.Options{
			Level:      logLevel,
			SampleRate: 1,
			Output:     cmd.ErrOrStderr(),
		})
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "ERROR", "Log level (TRACE, DEBUG, INFO, WARN, ERROR)")

	root.AddCommand(newEvalCmd(), newValidateCmd())
	return root
}

type evalOptions struct {
	file    string
	held    []string
	renewal []string
	asOf    string
	output  string
}

func newEvalCmd() *cobra.Command {
	var opts evalOptions

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a fixture's rules against a scenario",
		Long: `Loads recommendations, product groups, rules and an optional scenario from a
YAML fixture and prints the rules that fire. --held, --renewal and --as-of
override the fixture's scenario.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Path to the YAML fixture")
	cmd.Flags().StringSliceVar(&opts.held, "held", nil, "Codes the customer holds")
	cmd.Flags().StringSliceVar(&opts.renewal, "renewal", nil, "Codes up for renewal")
	cmd.Flags().StringVar(&opts.asOf, "as-of", "", "Evaluation date (YYYY-MM-DD), defaults to today")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output format: text or json")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runEval(cmd *cobra.Command, opts evalOptions) error {
	if opts.output != "text" && opts.output != "json" {
		return fmt.Errorf("unknown output format %q (use text or json)", opts.output)
	}

	fixture, err := LoadFixture(opts.file)
	if err != nil {
		return err
	}
	if err := fixture.Validate(); err != nil {
		return err
	}

	scenario := rules.Scenario{}
	if fixture.Scenario != nil {
		scenario = *fixture.Scenario
	}
	if cmd.Flags().Changed("held") {
		scenario.HeldCodes = opts.held
	}
	if cmd.Flags().Changed("renewal") {
		scenario.RenewalCodes = opts.renewal
	}
	if opts.asOf != "" {
		d, err := civil.ParseDate(opts.asOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of: %w", err)
		}
		scenario.AsOf = d
	}

	engine, err := fixture.Engine()
	if err != nil {
		return err
	}

	result, err := engine.EvaluateScenario(scenario)
	if err != nil {
		return err
	}

	if opts.output == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return printResult(cmd.OutOrStdout(), result)
}

func printResult(out io.Writer, result *rules.ScenarioResult) error {
	fmt.Fprintf(out, "as of %s: %d of %d active rules fired\n", result.AsOf, len(result.Fired), result.RulesEvaluated)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, f := range result.Fired {
		fmt.Fprintf(tw, "FIRED\t%s\t%s\t-> %s\n", f.Rule.ID, f.Rule.Name, f.RecommendationID)
	}
	for _, d := range result.Diagnostics {
		where := "rule"
		if d.ConditionIndex >= 0 {
			where = fmt.Sprintf("condition %d", d.ConditionIndex)
		}
		fmt.Fprintf(tw, "SKIPPED\t%s\t%s\t%s: %s\n", d.RuleID, where, d.Reason, d.Message)
	}
	return tw.Flush()
}

func newValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a fixture without evaluating it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := LoadFixture(file)
			if err != nil {
				return err
			}
			if err := fixture.Validate(); err != nil {
				return err
			}

			if _, err := fixture.Engine(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d recommendations, %d product groups, %d rules OK\n",
				file, len(fixture.Recommendations), len(fixture.ProductGroups), len(fixture.Rules))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the YAML fixture")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
