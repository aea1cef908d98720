package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bizmatters/calculator-studio/internal/config"
	"github.com/bizmatters/calculator-studio/internal/evaluator"
	"github.com/bizmatters/calculator-studio/internal/logging"
	"github.com/bizmatters/calculator-studio/internal/specgen"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "calcctl",
		Short:        "Generate and evaluate calculator specs from the command line",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Optional config file")

	root.AddCommand(
		newGenerateCmd(&configFile),
		newEvaluateCmd(),
		newFamiliesCmd(&configFile),
	)
	return root
}

func newGenerateCmd(configFile *string) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Print the spec generated for a prompt as JSON",
		Long: `Generate a calculator spec. Without a configured API key, or with
--offline, the keyword fallback table answers.

Examples:
  calcctl generate "monthly loan payment"
  calcctl generate --offline "tip for dinner"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return fmt.Errorf("prompt is required")
			}

			gen, logger, err := buildGenerator(cmd.Context(), *configFile, offline)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return writeJSON(cmd.OutOrStdout(), gen.Generate(cmd.Context(), prompt))
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the model and use the fallback table")
	return cmd
}

func newEvaluateCmd() *cobra.Command {
	var (
		specFile string
		sets     []string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a spec file against field values",
		Example: `  calcctl evaluate --spec tip.json --set bill_amount=50 --set tip_percentage=18
  calcctl generate "bmi" | calcctl evaluate --spec - --set weight=70 --set height=175`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readSpec(cmd.InOrStdin(), specFile)
			if err != nil {
				return err
			}
			spec, err := specgen.ParseSpec(raw)
			if err != nil {
				return fmt.Errorf("failed to read spec %s: %w", specFile, err)
			}

			values, err := parseAssignments(sets)
			if err != nil {
				return err
			}

			res := evaluator.EvaluateDetailed(spec, values)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return err
		},
	}
	cmd.Flags().StringVar(&specFile, "spec", "", "Spec JSON file, or - for stdin (required)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Field value as id=value (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result and status as JSON")
	_ = cmd.MarkFlagRequired("spec")
	return cmd
}

func newFamiliesCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "families",
		Short: "List fallback keyword families in match order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			var extra []specgen.Family
			if cfg.Generator.FallbackFile != "" {
				if extra, err = specgen.LoadFallbackFile(cfg.Generator.FallbackFile); err != nil {
					return err
				}
			}
			for _, name := range specgen.NewFallbackTable(extra...).Families() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// buildGenerator loads configuration and wires a generator for one CLI call
func buildGenerator(ctx context.Context, configFile string, offline bool) (*specgen.Generator, *zap.Logger, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if offline {
		cfg.Generator.APIKey = ""
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	gen, err := specgen.New(ctx, cfg.Generator, logger, nil)
	if err != nil {
		return nil, nil, err
	}
	return gen, logger, nil
}

func readSpec(stdin io.Reader, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read spec: %w", err)
	}
	return unwrapResult(b), nil
}

// unwrapResult accepts either a bare spec or the output of calcctl generate
func unwrapResult(b []byte) string {
	var wrapped struct {
		Spec json.RawMessage `json:"spec"`
	}
	if err := json.Unmarshal(b, &wrapped); err == nil && len(wrapped.Spec) > 0 {
		return string(wrapped.Spec)
	}
	return string(b)
}

// parseAssignments turns id=value pairs into form values
func parseAssignments(sets []string) (map[string]string, error) {
	values := make(map[string]string, len(sets))
	for _, s := range sets {
		id, value, ok := strings.Cut(s, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid --set %q, want id=value", s)
		}
		values[id] = value
	}
	return values, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
