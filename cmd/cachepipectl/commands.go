package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/cachepipe/health"
	"github.com/jonwraymond/cachepipe/resilience"
)

var errUnhealthy = errors.New("cachepipectl: unhealthy")

// entryView is the printed form of one cache entry.
type entryView struct {
	Key            string            `json:"key"`
	Found          bool              `json:"found"`
	Fresh          bool              `json:"fresh,omitempty"`
	TagsValid      bool              `json:"tags_valid,omitempty"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	Version        int               `json:"version,omitempty"`
	Compressed     bool              `json:"compressed,omitempty"`
	GenerationTime string            `json:"generation_time,omitempty"`
	TagVersions    map[string]string `json:"tag_versions,omitempty"`
	Value          any               `json:"value,omitempty"`
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

func newGetCmd(a *app) *cobra.Command {
	var hideValue bool
	cmd := &cobra.Command{
		Use:   "get KEY...",
		Short: "Show stored entries and their freshness",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, keys []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			storage := a.rt.Storage
			items, err := storage.GetMultiple(ctx, keys, a.rt.Resolver.Options())
			if err != nil {
				return err
			}
			now := storage.Now()
			views := make([]entryView, 0, len(keys))
			for _, key := range keys {
				item, ok := items[key]
				if !ok {
					views = append(views, entryView{Key: key})
					continue
				}
				valid, err := storage.TagsValid(ctx, item)
				if err != nil {
					return err
				}
				expires := item.LogicalExpireTime
				v := entryView{
					Key:            key,
					Found:          true,
					Fresh:          item.IsFresh(now),
					TagsValid:      valid,
					ExpiresAt:      &expires,
					Version:        item.Version,
					Compressed:     item.IsCompressed,
					GenerationTime: item.GenerationTime.String(),
					TagVersions:    item.TagVersions,
				}
				if !hideValue {
					v.Value = item.Data
				}
				views = append(views, v)
			}
			return writeJSON(cmd.OutOrStdout(), views)
		},
	}
	cmd.Flags().BoolVar(&hideValue, "no-value", false, "omit entry values from the output")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete KEY...",
		Short: "Delete entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, keys []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			for _, key := range keys {
				if err := a.rt.Resolver.Invalidate(ctx, key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", key)
			}
			return nil
		},
	}
}

func newInvalidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate TAG...",
		Short: "Invalidate every entry attached to the tags",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, tags []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			if err := a.rt.Resolver.InvalidateTags(ctx, tags...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invalidated %d tag(s)\n", len(tags))
			return nil
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry from the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear without --yes")
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			if err := a.rt.Storage.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing the cache")
	return cmd
}

type breakerView struct {
	Key          string     `json:"key"`
	State        string     `json:"state"`
	Stored       string     `json:"stored_state"`
	FailureCount int        `json:"failure_count"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
}

func newBreakerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breaker",
		Short: "Inspect or reset per-key circuit breakers",
	}

	store := func() (*resilience.BreakerStore, error) {
		s := a.rt.Resolver.Breakers()
		if s == nil {
			return nil, errors.New("circuit breaking is disabled in this config")
		}
		return s, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status KEY...",
		Short: "Show breaker state",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, keys []string) error {
			s, err := store()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			now := a.rt.Storage.Now()
			views := make([]breakerView, 0, len(keys))
			for _, key := range keys {
				rec, err := s.Load(ctx, key)
				if err != nil {
					return err
				}
				v := breakerView{
					Key:          key,
					State:        rec.Effective(now, s.Config()).String(),
					Stored:       rec.State.String(),
					FailureCount: rec.FailureCount,
				}
				if !rec.LastFailureTime.IsZero() {
					last := rec.LastFailureTime
					v.LastFailure = &last
				}
				views = append(views, v)
			}
			return writeJSON(cmd.OutOrStdout(), views)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset KEY...",
		Short: "Close breakers by deleting their records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, keys []string) error {
			s, err := store()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			for _, key := range keys {
				if err := s.Reset(ctx, key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", key)
			}
			return nil
		},
	})
	return cmd
}

func newHealthCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Run health checks once, or serve them over HTTP with --serve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				return serveHealth(cmd.Context(), addr, a.rt.Health)
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			report := a.rt.Health.Run(ctx)
			if err := writeJSON(cmd.OutOrStdout(), health.NewReportResponse(report)); err != nil {
				return err
			}
			if report.Status == health.StatusUnhealthy {
				return errUnhealthy
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "serve", "", "listen address for a /health endpoint")
	return cmd
}

func serveHealth(ctx context.Context, addr string, agg *health.Aggregator) error {
	mux := http.NewServeMux()
	mux.Handle("/health", health.Handler(agg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
