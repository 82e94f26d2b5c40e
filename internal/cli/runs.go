// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/runner/internal/client"
)

func newSubmitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <workflow-id>",
		Short: "Submit a new run of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := newClient().SubmitRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("submit run: %w", err)
			}
			return printRun(cmd, run)
		},
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Fetch a run by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := newClient().GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			return printRun(cmd, run)
		},
	}
}

func newListCommand() *cobra.Command {
	var workflowID string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := newClient().ListRuns(cmd.Context(), workflowID, limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(runs)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-36s  %-20s  %-10s  %s\n", "ID", "WORKFLOW", "STATUS", "CREATED_AT")
			for _, r := range runs {
				fmt.Fprintf(w, "%-36s  %-20s  %-10s  %s\n", r.ID, r.WorkflowID, r.Status, r.CreatedAt)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "filter by workflow ID")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of runs to return")
	return cmd
}

func newStepsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "steps <run-id>",
		Short: "List the steps recorded for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := newClient().ListSteps(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("list steps: %w", err)
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(steps)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-36s  %-20s  %-10s\n", "ID", "NODE", "STATUS")
			for _, s := range steps {
				fmt.Fprintf(w, "%-36s  %-20s  %-10s\n", s.ID, s.NodeID, s.Status)
			}
			return nil
		},
	}
}

func newStreamCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stream <run-id>",
		Short: "Tail a run's event stream until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().StreamEvents(cmd.Context(), args[0], cmd.OutOrStdout()); err != nil {
				return fmt.Errorf("stream events: %w", err)
			}
			return nil
		},
	}
}

func printRun(cmd *cobra.Command, run *client.Run) error {
	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(run)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "id:           %s\n", run.ID)
	fmt.Fprintf(w, "workflow_id:  %s\n", run.WorkflowID)
	fmt.Fprintf(w, "status:       %s\n", run.Status)
	fmt.Fprintf(w, "created_at:   %s\n", run.CreatedAt)
	if run.Error != "" {
		fmt.Fprintf(w, "error:        %s\n", run.Error)
	}
	return nil
}

// HandleExitError prints err and exits with a non-zero status, matching
// the teacher CLI's convention of letting RunE return errors and handling
// exit codes centrally in main.
func HandleExitError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
