package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"recruitline/internal/domain"
	"recruitline/internal/engine"
	"recruitline/internal/engine/auth"
	"recruitline/internal/repo"
)

func activityCmd() *cobra.Command {
	var q engine.ActivityQuery
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show the activity log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Activity(ctx, q, currentActor())
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, a := range items {
					rows = append(rows, table.Row{a.ID, formatTime(a.CreatedAt), a.EntityType, a.EntityID, a.Action, a.UserID, a.Description})
				}
				return renderTable(items, table.Row{"ID", "At (UTC)", "Entity", "Entity ID", "Action", "By", "Description"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&q.EntityType, "entity-type", "", "candidate, interview or booking_link")
	cmd.Flags().StringVar(&q.EntityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&q.Action, "action", "", "action filter")
	cmd.Flags().Int64Var(&q.Before, "before", 0, "only entries older than this id")
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", 20, "number of entries")
	return cmd
}

func rbacCmd() *cobra.Command {
	c := &cobra.Command{Use: "rbac", Short: "Manage actor roles"}
	var target, role string
	grant := &cobra.Command{
		Use:   "grant",
		Short: "Grant a role to an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return auth.Service{DB: e.DB}.Grant(ctx, target, role)
			})
		},
	}
	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a role from an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return auth.Service{DB: e.DB}.Revoke(ctx, target, role)
			})
		},
	}
	for _, sub := range []*cobra.Command{grant, revoke} {
		sub.Flags().StringVar(&target, "actor", "", "actor id")
		sub.Flags().StringVar(&role, "role", "", "role id")
		_ = sub.MarkFlagRequired("actor")
		_ = sub.MarkFlagRequired("role")
	}
	whoami := &cobra.Command{
		Use:   "whoami",
		Short: "Show the roles and permissions of --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID := viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				svc := auth.Service{DB: e.DB}
				roles, err := svc.ActorRoles(ctx, actorID)
				if err != nil {
					return err
				}
				perms, err := svc.ActorPermissions(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"actor_id": actorID, "roles": roles, "permissions": perms})
			})
		},
	}
	c.AddCommand(grant, revoke, whoami)
	return c
}

func apiKeyCmd() *cobra.Command {
	c := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var actorID, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the secret is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(actorID) == "" {
				actorID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				secret := "rl_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   actorID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: e.Now().UTC(),
				}
				tx, err := e.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := e.Repo.EnsureActor(ctx, tx, actorID, key.CreatedAt); err != nil {
					return err
				}
				if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "key": secret})
			})
		},
	}
	create.Flags().StringVar(&actorID, "actor", "", "actor the key authenticates as (default --actor-id)")
	create.Flags().StringVar(&name, "name", "", "label")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, k := range items {
					rows = append(rows, table.Row{k.ID, k.ActorID, k.Name, formatTime(k.CreatedAt)})
				}
				return renderTable(items, table.Row{"ID", "Actor", "Name", "Created (UTC)"}, rows)
			})
		},
	}
	list.Flags().StringVar(&actorID, "actor", "", "only keys of this actor")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	c.AddCommand(create, list, del)
	return c
}

func sweepCmd() *cobra.Command {
	c := &cobra.Command{Use: "sweep", Short: "Run maintenance passes once"}
	c.AddCommand(&cobra.Command{
		Use:   "reminders",
		Short: "Remind interviewers about missing feedback",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SweepFeedbackReminders(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "display-fields",
		Short: "Refresh candidate names copied onto interviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.ReconcileDisplayFields(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("refreshed %d interviews\n", n)
				return nil
			})
		},
	})
	return c
}
