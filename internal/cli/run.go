package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunStartCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunCancelCmd(clientFn, outputFn),
		newRunCellsCmd(clientFn, outputFn),
	)

	return cmd
}

func runRow(r *RunResponse) []string {
	return []string{r.ID, r.PipelineID, r.Event, r.Ref, r.Status, r.CreatedAt}
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var pipelineID string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(ListRunsOpts{
				PipelineID: pipelineID,
				Status:     status,
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "PIPELINE_ID", "EVENT", "REF", "STATUS", "CREATED"}
			rows := make([][]string, len(runs))
			for i := range runs {
				rows[i] = runRow(&runs[i])
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&pipelineID, "pipeline-id", "", "Filter by pipeline ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, RUNNING, SUCCEEDED, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var event string
	var ref string
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "start PIPELINE",
		Short: "Start a new run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.CreateRun(args[0], CreateRunRequest{
				Event:          event,
				Ref:            ref,
				IdempotencyKey: idempotencyKey,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run started: %s", run.ID))
			out.Print(
				[]string{"ID", "PIPELINE_ID", "EVENT", "REF", "STATUS", "CREATED"},
				[][]string{runRow(run)},
				run,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&event, "event", "", "Trigger event (push, pull_request, schedule, manual; default manual)")
	cmd.Flags().StringVar(&ref, "ref", "", "Git ref (e.g. refs/heads/main, refs/tags/v1.2.3)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency key to deduplicate runs")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details with cells",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(run)
				return nil
			}

			out.Table(
				[]string{"ID", "PIPELINE_ID", "EVENT", "REF", "STATUS", "ERROR", "CREATED"},
				[][]string{{run.ID, run.PipelineID, run.Event, run.Ref, run.Status, run.Error, run.CreatedAt}},
			)

			if len(run.Cells) > 0 {
				out.Section("")
				printCells(out, run.Cells)
			}
			return nil
		},
	}
}

func newRunCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a pending run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.CancelRun(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run cancelled: %s", run.ID))
			return nil
		},
	}
}

func newRunCellsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cells RUN_ID",
		Short: "List cells in a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			cells, err := client.ListCells(args[0])
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(cells)
				return nil
			}

			printCells(out, cells)
			return nil
		},
	}
}

// printCells выводит ячейки деревом: джоб[параметры] → шаги.
func printCells(out *Output, cells []CellResponse) {
	for i := range cells {
		c := &cells[i]

		label := c.Job
		if len(c.Params) > 0 {
			label = fmt.Sprintf("%s %v", c.Job, c.Params)
		}
		out.Section(fmt.Sprintf("[%s] %s #%s", outcomeMark(c.Status), label, strconv.Itoa(c.Index)))

		for _, s := range c.Steps {
			line := fmt.Sprintf("[%s] %s (%s)", outcomeMark(s.Outcome), s.Name, s.Action)
			if s.Error != "" {
				line += ": " + s.Error
			}
			out.Line(1, line)
		}

		if c.Error != "" && len(c.Steps) == 0 {
			out.Line(1, "error: "+c.Error)
		}
	}
}
