// Copyright 2025 AxonFlow
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

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"reportpilot/platform/orchestrator"
	"reportpilot/platform/orchestrator/access"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "reportpilot",
		Short:         "AI report generation service",
		Long:          `reportpilot turns natural-language requests into structured reports with a governed LLM conversation.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(configCmd())
	cmd.AddCommand(tokenCmd())

	return cmd
}

// serveCmd returns the command that runs the HTTP service.
func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the report service",
		Long: `Run the report service until interrupted.

Settings come from the optional YAML file and are then overridden from the
environment (DATABASE_URL, REDIS_URL, ANTHROPIC_API_KEY, LLM_PROVIDER, ...).

Examples:
  reportpilot serve
  reportpilot serve --config /etc/reportpilot.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := orchestrator.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return orchestrator.Run(cmd.Context(), cfg, version)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("REPORTPILOT_CONFIG"), "Path to the YAML config file")
	return cmd
}

// configCmd returns the command that prints the effective configuration.
func configCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := orchestrator.LoadConfig(configPath)
			if err != nil {
				return err
			}
			out, err := cfg.Redacted().YAML()
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("REPORTPILOT_CONFIG"), "Path to the YAML config file")
	return cmd
}

// tokenCmd returns the command that mints a development bearer token.
func tokenCmd() *cobra.Command {
	var (
		customerID string
		userID     string
		role       string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed bearer token for local testing",
		Long: `Mint an HS256 token signed with JWT_SECRET.

Examples:
  reportpilot token --customer acme --user u1
  reportpilot token --customer acme --user ops --role admin --ttl 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if customerID == "" {
				return fmt.Errorf("--customer is required")
			}
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("JWT_SECRET environment variable is required")
			}
			token, err := access.IssueToken(secret, customerID, userID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&customerID, "customer", "", "Customer id claim (required)")
	cmd.Flags().StringVar(&userID, "user", "", "User id claim")
	cmd.Flags().StringVar(&role, "role", "", "Role claim; admin unlocks restricted fields")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime; 0 for no expiry")
	return cmd
}
