package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/ReelDrop/internal/app"
	"github.com/dharsanguruparan/ReelDrop/internal/signing"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and event workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(cmd.Context())
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the asynq worker that deletes expired artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunWorker(cmd.Context(), cfg)
		},
	}
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <video-id>",
		Short: "Look up a video and show which variant would be delivered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, engine, err := app.NewEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			item, variant, err := engine.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"externalId": item.ExternalID,
				"title":      item.Title,
				"duration":   item.Duration.String(),
				"variants":   len(item.Variants),
				"selected":   variant,
			})
		},
	}
}

func newSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search the catalog the way search mode does",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yt, _, err := app.NewEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			results, err := yt.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results")
	return cmd
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the artifact cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <video-id>",
		Short: "Print the cached record for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, closeCache, err := app.NewCache(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeCache()
			rec, err := cache.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	})
	return cmd
}

func newExpireCmd() *cobra.Command {
	var dropRecord bool
	cmd := &cobra.Command{
		Use:   "expire <video-id>",
		Short: "Delete a published artifact now and cancel its scheduled expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := app.NewContentStore(ctx, cfg)
			if err != nil {
				return err
			}
			scheduler := app.NewScheduler(cfg, store)
			defer scheduler.Close()

			key := signing.NewSigner(cfg.SigningSecret).ArtifactKey(args[0])
			pending, due, err := scheduler.Pending(ctx, key)
			if err != nil {
				return err
			}
			if err := scheduler.Cancel(ctx, key); err != nil {
				return err
			}
			if err := store.Delete(ctx, key); err != nil {
				return err
			}
			if dropRecord {
				cache, closeCache, err := app.NewCache(ctx, cfg)
				if err != nil {
					return err
				}
				defer closeCache()
				if err := cache.Delete(ctx, args[0]); err != nil {
					return err
				}
			}
			out := map[string]any{"key": key, "hadPendingExpiry": pending}
			if pending {
				out["wasDue"] = due.Format(time.RFC3339)
			}
			return printJSON(out)
		},
	}
	cmd.Flags().BoolVar(&dropRecord, "drop-record", false, "Also delete the cache record")
	return cmd
}

func newDeliverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deliver <recipient-id> <video-id>",
		Short: "Run the full delivery pipeline for one recipient",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			out := a.Pipeline.Deliver(cmd.Context(), args[0], args[1])
			result := map[string]any{"status": out.Status, "kind": out.Kind}
			if out.Record != nil {
				result["deliveryUrl"] = out.Record.DeliveryURL
			}
			if out.Err != nil {
				result["error"] = out.Err.Error()
			}
			return printJSON(result)
		},
	}
}

func newTestCmd() *cobra.Command {
	var race bool
	var cover bool
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run Go tests (defaults to ./...)",
		// tests do not need configuration
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			pkgs := args
			if len(pkgs) == 0 {
				pkgs = []string{"./..."}
			}
			goArgs := []string{"test"}
			if race {
				goArgs = append(goArgs, "-race")
			}
			if cover {
				goArgs = append(goArgs, "-cover")
			}
			goArgs = append(goArgs, pkgs...)
			return runCommand(cmd.Context(), "go", goArgs...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", false, "Enable Go race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Collect coverage data")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
