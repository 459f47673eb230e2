// Command goalflow is the CLI for goal-driven agent workflows: it validates
// and runs graph definitions, resumes paused runs, and drives the test
// lifecycle (generate, approve, run) against a SQLite-backed store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/goalflow"
	"github.com/hupe1980/goalflow/core"
	"github.com/hupe1980/goalflow/evaluation"
	"github.com/hupe1980/goalflow/graph"
	"github.com/hupe1980/goalflow/logging"
	"github.com/hupe1980/goalflow/model"
	"github.com/hupe1980/goalflow/model/anthropic"
	"github.com/hupe1980/goalflow/model/openai"
	"github.com/hupe1980/goalflow/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "goalflow",
		Short:         "Goal-driven agent graph execution and evaluation",
		Long:          "Goalflow executes declaratively specified agent workflows and gates their generated tests through human approval.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("db", "goalflow.db", "Path to the SQLite database")
	rootCmd.PersistentFlags().String("provider", "", "Model provider: anthropic, openai or empty for none")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newResumeCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newTestsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newEngine wires an Engine from the persistent flags: SQLite-backed stores
// and an optional model provider.
func newEngine(cmd *cobra.Command) (*goalflow.Engine, *store.DB, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	provider, _ := cmd.Flags().GetString("provider")
	verbose, _ := cmd.Flags().GetBool("verbose")

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}

	level := logging.LogLevelInfo
	if verbose {
		level = logging.LogLevelDebug
	}
	logger := logging.NewSlogLogger(level, "text", false)

	var m model.Model
	switch provider {
	case "anthropic":
		m = anthropic.NewModel()
	case "openai":
		m = openai.NewModel()
	case "":
	default:
		db.Close()
		return nil, nil, fmt.Errorf("unknown provider %q", provider)
	}

	engine := goalflow.New(func(o *goalflow.Options) {
		o.Model = m
		o.PauseStore = db
		o.RunStore = db
		o.TestStore = db
		o.Logger = logger
	})
	return engine, db, nil
}

func loadDocument(path string) (*graph.Document, error) {
	doc, err := graph.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if doc.Goal == nil {
		doc.Goal = &core.Goal{ID: doc.Graph.GoalID}
	}
	return doc, nil
}

func parseInput(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return nil, fmt.Errorf("parse --input: %w", err)
	}
	return input, nil
}

func printResult(res *core.ExecutionResult) {
	switch {
	case res.Paused():
		fmt.Printf("Run %s paused at node %q (resume label %q)\n", res.RunID, res.PausedAt, res.ResumeLabel)
		if prompt, ok := res.Output["input_request"]; ok {
			fmt.Printf("Input requested: %v\n", prompt)
		}
	case res.Failed():
		fmt.Printf("Run %s failed after %d steps: %v\n", res.RunID, res.StepsExecuted, res.Err)
	default:
		fmt.Printf("Run %s completed in %d steps (%s)\n", res.RunID, res.StepsExecuted, res.Duration.Round(time.Millisecond))
		printJSON(res.Output)
	}
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(data))
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <graph.yaml>",
		Short: "Validate a graph definition without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := graph.LoadFile(args[0], func(o *graph.LoadOptions) { o.SkipValidation = true })
			if err != nil {
				return err
			}

			result := graph.Validate(doc.Graph)
			for _, w := range result.Warnings {
				fmt.Println("warning:", w)
			}
			if err := result.Err(doc.Graph.ID); err != nil {
				return err
			}
			fmt.Printf("Graph %q is valid (%d nodes, %d edges)\n", doc.Graph.ID, len(doc.Graph.Nodes), len(doc.Graph.Edges))
			return nil
		},
	}
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <graph.yaml>",
		Short: "Execute a graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			raw, _ := cmd.Flags().GetString("input")
			input, err := parseInput(raw)
			if err != nil {
				return err
			}

			engine, db, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := engine.Execute(context.Background(), doc.Graph, doc.Goal, input)
			if res != nil {
				printResult(res)
			}
			if err != nil && (res == nil || !res.Paused()) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringP("input", "i", "", "Initial context as a JSON object")
	return cmd
}

func newResumeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <graph.yaml> <run-id>",
		Short: "Resume a paused run with external input",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			raw, _ := cmd.Flags().GetString("input")
			input, err := parseInput(raw)
			if err != nil {
				return err
			}

			engine, db, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := engine.Resume(context.Background(), doc.Graph, doc.Goal, args[1], input)
			if res != nil {
				printResult(res)
			}
			if err != nil && (res == nil || !res.Paused()) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringP("input", "i", "", "Resume input as a JSON object")
	return cmd
}

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			_, db, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}
			for _, r := range runs {
				line := fmt.Sprintf("%s  %-9s  graph=%s  steps=%d", r.ID, r.Status, r.GraphID, r.Steps)
				if r.PausedAt != "" {
					line += "  paused_at=" + r.PausedAt
				}
				if r.Error != "" {
					line += "  error=" + r.Error
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	return cmd
}

func newTestsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tests",
		Short: "Manage the test lifecycle",
	}
	cmd.AddCommand(newTestsGenerateCommand())
	cmd.AddCommand(newTestsListCommand())
	cmd.AddCommand(newTestsApproveCommand())
	cmd.AddCommand(newTestsRejectCommand())
	cmd.AddCommand(newTestsModifyCommand())
	cmd.AddCommand(newTestsRunCommand())
	return cmd
}

func newTestsGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <graph.yaml>",
		Short: "Generate pending tests for the document's goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			stageName, _ := cmd.Flags().GetString("stage")
			stage := core.GenerationStage(stageName)
			if !stage.Valid() {
				return fmt.Errorf("unknown stage %q (goal, build or debug)", stageName)
			}

			engine, db, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			tests, err := engine.GenerateTests(context.Background(), doc.Goal, doc.Graph, stage)
			if err != nil {
				return err
			}
			fmt.Printf("Generated %d pending tests:\n", len(tests))
			for _, t := range tests {
				fmt.Printf("  %s  %s\n", t.ID, t.Name)
			}
			return nil
		},
	}
	cmd.Flags().String("stage", "goal", "Generation stage: goal, build or debug")
	return cmd
}

func newTestsListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <goal-id>",
		Short: "List a goal's tests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statusName, _ := cmd.Flags().GetString("status")

			engine, db, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			var statuses []core.TestStatus
			if statusName != "" {
				statuses = append(statuses, core.TestStatus(statusName))
			}
			tests, err := engine.ListTests(args[0], statuses...)
			if err != nil {
				return err
			}
			if len(tests) == 0 {
				fmt.Println("No tests found.")
				return nil
			}
			for _, t := range tests {
				fmt.Printf("%s  %-8s  %-16s  %s\n", t.ID, t.Status, t.Type, t.Name)
			}
			return nil
		},
	}
	cmd.Flags().String("status", "", "Filter by status: pending, approved, modified or rejected")
	return cmd
}

func newTestsApproveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <test-id>",
		Short: "Approve a pending test as generated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, db, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			t, err := engine.ApproveTest(args[0], evaluation.Decision{Action: evaluation.ActionApprove})
			if err != nil {
				return err
			}
			fmt.Printf("Test %s approved.\n", t.ID)
			return nil
		},
	}
}

func newTestsRejectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <test-id>",
		Short: "Reject a pending test (requires --reason)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")

			engine, db, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			t, err := engine.ApproveTest(args[0], evaluation.Decision{Action: evaluation.ActionReject, Reason: reason})
			if err != nil {
				return err
			}
			fmt.Printf("Test %s rejected: %s\n", t.ID, reason)
			return nil
		},
	}
	cmd.Flags().String("reason", "", "Why the test is declined")
	return cmd
}

func newTestsModifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modify <test-id>",
		Short: "Accept a pending test with a replacement payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawInput, _ := cmd.Flags().GetString("input")
			rawExpected, _ := cmd.Flags().GetString("expected")

			input, err := parseInput(rawInput)
			if err != nil {
				return err
			}
			var expected map[string]any
			if rawExpected != "" {
				if err := json.Unmarshal([]byte(rawExpected), &expected); err != nil {
					return fmt.Errorf("parse --expected: %w", err)
				}
			}

			engine, db, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			t, err := engine.ApproveTest(args[0], evaluation.Decision{
				Action:   evaluation.ActionModify,
				Input:    input,
				Expected: expected,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Test %s modified.\n", t.ID)
			return nil
		},
	}
	cmd.Flags().String("input", "", "Replacement input as a JSON object")
	cmd.Flags().String("expected", "", "Replacement expected output as a JSON object")
	return cmd
}

func newTestsRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <graph.yaml>",
		Short: "Run the goal's approved and modified tests against the graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			workers, _ := cmd.Flags().GetInt("workers")
			failFast, _ := cmd.Flags().GetBool("fail-fast")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			engine, db, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := engine.RunTests(context.Background(), doc.Graph, doc.Goal, evaluation.RunConfig{
				Workers:  workers,
				Timeout:  timeout,
				FailFast: failFast,
			})
			if err != nil {
				return err
			}

			for _, r := range report.Results {
				mark := "PASS"
				if !r.Passed {
					mark = "FAIL"
				}
				line := fmt.Sprintf("%s  %s  (%s)", mark, r.TestID, r.Duration.Round(time.Millisecond))
				if !r.Passed {
					line += fmt.Sprintf("  [%s] %s", r.Category, r.Error)
				}
				fmt.Println(line)
			}
			for _, v := range report.Violations {
				fmt.Printf("SKIP  %s  not runnable (status %s)\n", v.TestID, v.Status)
			}
			fmt.Printf("\n%d/%d passed (%.0f%%) in %s\n",
				report.Summary.Passed, report.Summary.Total,
				report.Summary.PassRate*100, report.Summary.Duration.Round(time.Millisecond))
			if !report.OverallPassed {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().Int("workers", 4, "Concurrent test groups")
	cmd.Flags().Bool("fail-fast", false, "Stop scheduling new groups after the first failure")
	cmd.Flags().Duration("timeout", 0, "Per-test timeout (default 30s)")
	return cmd
}
