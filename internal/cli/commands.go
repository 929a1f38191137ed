package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zombar/feedbackpulse/internal/app"
	"github.com/zombar/feedbackpulse/internal/auth"
	"github.com/zombar/feedbackpulse/internal/dashboard"
	"github.com/zombar/feedbackpulse/internal/models"
)

func (h *Handler) analyzeCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "analyze <text>",
		Short: "Analyze a piece of feedback text",
		Long:  "Runs sentiment, categorization, key phrases and priority on the text and prints the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("text must not be empty")
			}

			a, err := app.NewAnalyzer(h.cfg, h.logger, nil)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return writeJSON(cmd.OutOrStdout(), a.Analyze(ctx, text))
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Analysis timeout")
	return cmd
}

func (h *Handler) metricsCmd() *cobra.Command {
	var (
		scope   models.Scope
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Compute dashboard metrics for a scope",
		Long:  "Aggregates surveys and responses matching the scope and prints the dashboard metrics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			store, err := app.OpenStore(ctx, h.cfg, h.logger)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer store.Close(context.Background())

			a, err := app.NewAnalyzer(h.cfg, h.logger, nil)
			if err != nil {
				return err
			}

			aggregator := dashboard.NewAggregator(store, a,
				dashboard.WithConcurrency(h.cfg.AnalysisConcurrency),
				dashboard.WithLogger(h.logger),
			)

			metrics, err := aggregator.ComputeMetrics(ctx, scope)
			if err != nil {
				return fmt.Errorf("computing metrics: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), metrics)
		},
	}

	cmd.Flags().StringVar(&scope.ProjectID, "project", "", "Project ID filter")
	cmd.Flags().StringVar(&scope.ClientID, "client", "", "Client ID filter")
	cmd.Flags().StringVar(&scope.OrganizationID, "org", "", "Organization ID filter")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Computation timeout")
	return cmd
}

// tokenCmd issues dashboard tokens for local testing
func (h *Handler) tokenCmd() *cobra.Command {
	var (
		userID string
		orgID  string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a dashboard access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if h.cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required")
			}
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			if orgID == "" && !auth.Role(role).AtLeast(auth.RoleAdmin) {
				return fmt.Errorf("--org is required for role %q", role)
			}

			token, err := auth.NewVerifier(h.cfg.JWTSecret).Issue(userID, orgID, auth.Role(role), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	cmd.Flags().StringVar(&orgID, "org", "", "Organization ID")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleUser), "Role: user, owner, admin or super_admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime, 0 for no expiry")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
