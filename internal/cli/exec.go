package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/engine"
	"github.com/shaiso/conveyor/internal/runner"
	"github.com/shaiso/conveyor/internal/secrets"
)

// NewExecCmd создаёт команду локального выполнения конвейера.
//
// В отличие от остальных команд, exec не ходит в API: определение
// читается из файла и выполняется в текущем процессе через
// runner.LocalRunner. Это путь для отладки определений до публикации.
func NewExecCmd(outputFn func() *Output) *cobra.Command {
	var (
		file        string
		event       string
		ref         string
		secretsFile string
		secretKVs   []string
		maxParallel int
		workDir     string
		keepWorkDir bool
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute a pipeline definition locally",
		Long: `Execute a pipeline definition locally, without the server components.

Cells of ready jobs run in parallel; steps inside a cell run in order
with fail-fast. Secrets are resolved from --secret flags, the TOML
secrets file and CONVEYOR_SECRET_* environment variables, in that order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			src, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read definition file: %w", err)
			}

			def, err := engine.Parse(src)
			if err != nil {
				return fmt.Errorf("definition is invalid: %w", err)
			}

			ev := domain.EventKind(event)
			if !ev.Valid() {
				return fmt.Errorf("unknown event %q", event)
			}

			provider, err := buildSecretProvider(secretKVs, secretsFile)
			if err != nil {
				return err
			}

			logLevel := slog.LevelWarn
			if verbose {
				logLevel = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

			local := runner.NewLocalRunner(runner.LocalConfig{
				Cells: runner.NewCellRunner(runner.CellConfig{
					Secrets:     provider,
					Logger:      logger,
					WorkDir:     workDir,
					KeepWorkDir: keepWorkDir,
				}),
				Logger:      logger,
				MaxParallel: maxParallel,
			})

			result, err := local.Run(cmd.Context(), def, domain.RunContext{Event: ev, Ref: ref})
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(result)
			} else {
				printLocalResult(out, result)
			}

			if !result.Passed() {
				return fmt.Errorf("pipeline failed")
			}
			out.Success("Pipeline succeeded")
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to YAML definition file (required)")
	cmd.Flags().StringVar(&event, "event", "manual", "Trigger event (push, pull_request, schedule, manual)")
	cmd.Flags().StringVar(&ref, "ref", "", "Git ref (e.g. refs/heads/main, refs/tags/v1.2.3)")
	cmd.Flags().StringVar(&secretsFile, "secrets-file", "", "Path to TOML secrets file")
	cmd.Flags().StringSliceVar(&secretKVs, "secret", nil, "Secret as NAME=VALUE (repeatable)")
	cmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "Maximum cells running at once (0 = unlimited)")
	cmd.Flags().StringVar(&workDir, "workdir", "", "Base directory for cell workspaces")
	cmd.Flags().BoolVar(&keepWorkDir, "keep-workdir", false, "Do not delete cell workspaces after execution")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Verbose execution logging")
	cmd.MarkFlagRequired("file")

	return cmd
}

// buildSecretProvider собирает цепочку провайдеров:
// явные --secret, затем файл, затем переменные окружения.
func buildSecretProvider(kvs []string, path string) (secrets.Provider, error) {
	chain := secrets.Chain{}

	if len(kvs) > 0 {
		static := secrets.Static{}
		for _, kv := range kvs {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("invalid secret format %q, expected NAME=VALUE", kv)
			}
			static[parts[0]] = parts[1]
		}
		chain = append(chain, static)
	}

	if path != "" {
		fromFile, err := secrets.LoadFile(path)
		if err != nil {
			return nil, err
		}
		chain = append(chain, fromFile)
	}

	chain = append(chain, secrets.Env{})

	return chain, nil
}

// printLocalResult выводит результат локального запуска деревом.
func printLocalResult(out *Output, result *domain.PipelineResult) {
	for _, c := range result.Cells {
		label := c.Job
		if len(c.Params) > 0 {
			label = fmt.Sprintf("%s %v", c.Job, c.Params)
		}
		out.Section(fmt.Sprintf("[%s] %s #%d", outcomeMark(string(c.Status)), label, c.Index))

		for _, s := range c.Steps {
			line := fmt.Sprintf("[%s] %s (%s)", outcomeMark(string(s.Outcome)), s.Name, s.Action)
			if s.Error != "" {
				line += ": " + s.Error
			}
			if dur := s.Duration(); dur > 0 {
				line += fmt.Sprintf(" %.1fs", dur.Seconds())
			}
			out.Line(1, line)
		}

		if c.Error != "" && len(c.Steps) == 0 {
			out.Line(1, "error: "+c.Error)
		}
	}
}
