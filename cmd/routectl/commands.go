package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"route-gateway/internal/config"
	"route-gateway/internal/routing"
	"route-gateway/pkg/redis"
)

const flagConfig = "config"

// routeStore はroutectlが操作するルートの保存先
type routeStore interface {
	Routes(ctx context.Context) ([]config.Route, error)
	Route(ctx context.Context, pattern string) (config.Route, bool, error)
	Put(ctx context.Context, route config.Route) error
	Delete(ctx context.Context, pattern string) (bool, error)
}

// openStoreFunc はコマンドが使う保存先を開く。テストで差し替える
type openStoreFunc func(cmd *cobra.Command) (routeStore, func() error, error)

func newRootCommand() *cobra.Command {
	return newRootCommandWithStore(openRedisStore)
}

func newRootCommandWithStore(open openStoreFunc) *cobra.Command {
	root := &cobra.Command{
		Use:          "routectl",
		Short:        "Manages the routes the gateway reads from redis",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP(flagConfig, "c", config.ConfigPath("configs/gateway.yaml"), "path to gateway config file")

	root.AddCommand(
		newPutCommand(open),
		newDeleteCommand(open),
		newListCommand(open),
		newGetCommand(open),
	)
	return root
}

func newPutCommand(open openStoreFunc) *cobra.Command {
	var (
		id          string
		methods     []string
		timeout     time.Duration
		noStrip     bool
		middlewares []string
	)

	cmd := &cobra.Command{
		Use:     "put <pattern> <url>",
		Short:   "Creates or replaces a route",
		Example: "routectl put '/account/**' http://account:8080 --timeout 5s",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			route := config.Route{
				ID:      id,
				Path:    args[0],
				Methods: methods,
				Backend: config.BackendConfig{URL: args[1], Timeout: timeout},
			}
			if noStrip {
				strip := false
				route.StripPrefix = &strip
			}
			for _, m := range middlewares {
				route.Middleware = append(route.Middleware, config.MiddlewareConfig{Type: m})
			}

			return withStore(cmd, open, func(ctx context.Context, store routeStore) error {
				if err := store.Put(ctx, route); err != nil {
					return err
				}
				cmd.Printf("route %s -> %s saved\n", route.Path, route.Backend.URL)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "route id (defaults to the pattern)")
	cmd.Flags().StringSliceVar(&methods, "methods", nil, "allowed HTTP methods (default: any)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "backend timeout")
	cmd.Flags().BoolVar(&noStrip, "no-strip-prefix", false, "forward the matched prefix to the backend")
	cmd.Flags().StringSliceVar(&middlewares, "middleware", nil, "route middleware types (jwt, logging)")
	return cmd
}

func newDeleteCommand(open openStoreFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <pattern>",
		Short: "Removes a route",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, open, func(ctx context.Context, store routeStore) error {
				deleted, err := store.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("route %s not found", args[0])
				}
				cmd.Printf("route %s deleted\n", args[0])
				return nil
			})
		},
	}
}

func newListCommand(open openStoreFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists the stored routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, open, func(ctx context.Context, store routeStore) error {
				routes, err := store.Routes(ctx)
				if err != nil {
					return err
				}
				return printRoutes(cmd.OutOrStdout(), routes)
			})
		},
	}
}

func newGetCommand(open openStoreFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "get <pattern>",
		Short: "Prints a stored route as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, open, func(ctx context.Context, store routeStore) error {
				route, ok, err := store.Route(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("route %s not found", args[0])
				}

				enc := yaml.NewEncoder(cmd.OutOrStdout())
				defer enc.Close()
				return enc.Encode(route)
			})
		},
	}
}

func withStore(cmd *cobra.Command, open openStoreFunc, fn func(ctx context.Context, store routeStore) error) error {
	store, closeFn, err := open(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	return fn(cmd.Context(), store)
}

func printRoutes(out io.Writer, routes []config.Route) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATTERN\tID\tMETHODS\tBACKEND\tTIMEOUT")
	for _, r := range routes {
		methods := "*"
		if len(r.Methods) > 0 {
			methods = strings.Join(r.Methods, ",")
		}
		timeout := "-"
		if r.Backend.Timeout > 0 {
			timeout = r.Backend.Timeout.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Path, r.ID, methods, r.Backend.URL, timeout)
	}
	return tw.Flush()
}

func openRedisStore(cmd *cobra.Command) (routeStore, func() error, error) {
	path, _ := cmd.Flags().GetString(flagConfig)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Redis.Host == "" {
		return nil, nil, fmt.Errorf("redis host is not configured")
	}

	client, err := redis.NewClient(cmd.Context(), redis.Config{
		Host:         cfg.Redis.Host,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	return routing.NewRedisSource(client, cfg.Redis.KeyPrefix+cfg.Routing.RedisKey), client.Close, nil
}
