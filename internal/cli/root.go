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

// Package cli implements runnerctl, a terminal client for runnerd.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/runner/internal/client"
)

var (
	serverURL string
	orgID     string
	userID    string
	role      string
	jsonOut   bool
)

// version information, set via SetVersion from main.
var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

// SetVersion records build-time version info for the version command.
func SetVersion(v, c, b string) {
	buildVersion, buildCommit, buildDate = v, c, b
}

// NewRootCommand creates the root Cobra command for runnerctl.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "runnerctl",
		Short:         "runnerctl - submit and inspect workflow runs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("RUNNER_SERVER_URL", "http://localhost:8080"), "runnerd base URL")
	cmd.PersistentFlags().StringVar(&orgID, "org-id", envOr("RUNNER_ORG_ID", ""), "X-Org-Id header value")
	cmd.PersistentFlags().StringVar(&userID, "user-id", envOr("RUNNER_USER_ID", ""), "X-User-Id header value")
	cmd.PersistentFlags().StringVar(&role, "role", envOr("RUNNER_ROLE", "MEMBER"), "X-User-Role header value (OWNER, ADMIN, MEMBER)")
	cmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output raw JSON instead of a table")

	cmd.AddCommand(newSubmitCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newStepsCommand())
	cmd.AddCommand(newStreamCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Printf("runnerctl %s (commit: %s, built: %s)\n", buildVersion, buildCommit, buildDate)
			return nil
		},
	}
}

func newClient() *client.Client {
	return client.New(serverURL, client.WithActor(orgID, userID, role))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
