package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"recruitline/internal/engine"
	"recruitline/internal/repo"
)

func candidateCmd() *cobra.Command {
	c := &cobra.Command{Use: "candidate", Aliases: []string{"candidates"}, Short: "Manage candidates"}
	c.AddCommand(candidateCreateCmd())
	c.AddCommand(candidateApplyCmd())
	c.AddCommand(candidateListCmd())
	c.AddCommand(candidateShowCmd())
	c.AddCommand(candidateUpdateCmd())
	c.AddCommand(candidateProbeCmd())
	c.AddCommand(candidateArchiveCmd())
	c.AddCommand(candidateRestoreCmd())
	c.AddCommand(candidateReactivateCmd())
	c.AddCommand(candidateDeleteCmd())
	return c
}

type candidateFlags struct {
	name, email, phone, cv, job, branch string
}

func (f *candidateFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "full name")
	cmd.Flags().StringVar(&f.email, "email", "", "email address")
	cmd.Flags().StringVar(&f.phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&f.cv, "cv", "", "CV reference")
	cmd.Flags().StringVar(&f.job, "job-title", "", "position applied for")
	cmd.Flags().StringVar(&f.branch, "branch", "", "branch name")
}

func (f candidateFlags) input() engine.CandidateInput {
	return engine.CandidateInput{Name: f.name, Email: f.email, Phone: f.phone, CVRef: f.cv, JobTitle: f.job, BranchName: f.branch}
}

func (f candidateFlags) patch(cmd *cobra.Command) repo.CandidatePatch {
	return repo.CandidatePatch{
		Name:       optionalString(cmd, "name", f.name),
		Email:      optionalString(cmd, "email", f.email),
		Phone:      optionalString(cmd, "phone", f.phone),
		CVRef:      optionalString(cmd, "cv", f.cv),
		JobTitle:   optionalString(cmd, "job-title", f.job),
		BranchName: optionalString(cmd, "branch", f.branch),
	}
}

func candidateCreateCmd() *cobra.Command {
	var f candidateFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a candidate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateCandidate(ctx, f.input(), currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	f.bind(cmd)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func candidateApplyCmd() *cobra.Command {
	var f candidateFlags
	var key string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Submit an application, reactivating a returning candidate when one matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SubmitApplication(ctx, f.input(), key, currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&key, "application-key", "", "idempotency key for this application")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func candidateListCmd() *cobra.Command {
	var status, archived string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			var archivedFilter *bool
			if archived != "" {
				v, err := strconv.ParseBool(archived)
				if err != nil {
					return fmt.Errorf("--archived must be true or false")
				}
				archivedFilter = &v
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListCandidates(ctx, status, archivedFilter, limit)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, c := range items {
					rows = append(rows, table.Row{c.ID, c.Name, c.Email, c.Status, c.ApplicationCount, c.JobTitle})
				}
				return renderTable(items, table.Row{"ID", "Name", "Email", "Status", "Apps", "Job"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&archived, "archived", "", "true or false")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func candidateShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetCandidate(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func candidateUpdateCmd() *cobra.Command {
	var f candidateFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update candidate details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.UpdateCandidate(ctx, args[0], f.patch(cmd), currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func candidateProbeCmd() *cobra.Command {
	var email, phone string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether an email or phone belongs to a previous candidate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.ProbeReturning(ctx, email, phone)
				if err != nil {
					return err
				}
				if m == nil && !viper.GetBool("json") {
					fmt.Println("no previous application")
					return nil
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	return cmd
}

func candidateArchiveCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a candidate, cancelling open interviews and revoking links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Archive(ctx, args[0], reason, currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "archive reason")
	return cmd
}

func candidateRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore an archived candidate to their previous status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Restore(ctx, args[0], currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func candidateReactivateCmd() *cobra.Command {
	var f candidateFlags
	var key string
	cmd := &cobra.Command{
		Use:   "reactivate <id>",
		Short: "Start a new application for an archived candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Reactivate(ctx, args[0], engine.ReactivateOptions{Overrides: f.patch(cmd), ApplicationKey: key}, currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&key, "application-key", "", "idempotency key for this application")
	return cmd
}

func candidateDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Permanently delete an archived candidate and everything attached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("permanent deletion needs --yes")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fp, err := e.HardDelete(ctx, args[0], currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(fp)
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm permanent deletion")
	return cmd
}
