package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot(os.Stdout)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with every subcommand attached.
func buildRoot(out io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	cmd := command{global: globalFlags, out: out}

	root := createRootCommand(globalFlags)
	root.SetOut(out)
	root.AddCommand(
		createServeCommand(),
		createInitSchemaCommand(cmd),
		createAddCommand(cmd),
		createGetCommand(cmd),
		createRemoveCommand(cmd),
		createListCommand(cmd),
		createLoginCommand(cmd),
		createLogoutCommand(cmd),
		createHashPasswordCommand(cmd),
	)
	return root
}

// createRootCommand creates the root command with the persistent connection flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "archivist",
		Short: "Archiver metadata registry",
		Long: `Archivist keeps the registry of archiver nodes known to the monitor:
register, look up, list and remove archivers locally or through a running server.

Examples:
  archivist serve --config=archivist.toml
  archivist add --host=10.0.0.4:5432 --name=archive-east
  archivist get --id=1
  archivist list --api-url=http://remote:8080/api
  archivist remove --id=1 --dsn=sqlite://archivist.db`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.APIUrl, "api-url", "http://localhost:8080/api", "server URL including base path")
	pf.DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	pf.StringVar(&flags.Username, "username", "", "API username (basic auth / login)")
	pf.StringVar(&flags.Password, "password", "", "API password (basic auth / login)")
	pf.StringVar(&flags.CACert, "ca-cert", "", "CA certificate used to verify the server")
	pf.BoolVar(&flags.Insecure, "insecure", false, "skip TLS verification")
	pf.StringVar(&flags.SessionDir, "session-dir", "", "where login tokens are kept (default ~/.archivist)")
	_ = pf.MarkHidden("session-dir")
	return root
}

func createServeCommand() *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the archivist server",
		Long: `Start the HTTP API (and the metrics endpoint when enabled).
Configuration comes from the TOML file plus ARCHIVIST_* environment overrides.

Examples:
  archivist serve --config=archivist.toml
  archivist serve archivist.toml
  ARCHIVIST_STORE_DSN=postgres://u:p@db/archivist archivist serve`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeCommand(f, args)
		},
	}
	cmd.Flags().StringVar(&f.ConfigPath, "config", "", "path to TOML config file (optional)")
	return cmd
}

func createInitSchemaCommand(c command) *cobra.Command {
	f := &InitSchemaFlags{}
	cmd := &cobra.Command{
		Use:   "init-schema",
		Short: "Create the archiver table and identifier sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.InitSchema(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.DSN, "dsn", "", "store DSN (postgres://..., sqlite://path, sqlitepool://path)")
	mustRequire(cmd, "dsn")
	return cmd
}

func createAddCommand(c command) *cobra.Command {
	f := &AddFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an archiver",
		Long: `Register an archiver and print its node id. Without --name the
archiver is named archiver_<id>.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Add(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Host, "host", "", "archiver connection address (required)")
	cmd.Flags().StringVar(&f.Name, "name", "", "archiver name")
	cmd.Flags().StringVar(&f.DSN, "dsn", "", "write to this store directly instead of the API")
	mustRequire(cmd, "host")
	return cmd
}

func createGetCommand(c command) *cobra.Command {
	f := &IDFlags{}
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show one archiver",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Get(cmd.Context(), *f)
		},
	}
	cmd.Flags().Int64Var(&f.ID, "id", 0, "archiver node id (required)")
	cmd.Flags().StringVar(&f.DSN, "dsn", "", "read this store directly instead of the API")
	mustRequire(cmd, "id")
	return cmd
}

func createRemoveCommand(c command) *cobra.Command {
	f := &IDFlags{}
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove an archiver (succeeds when already gone)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Remove(cmd.Context(), *f)
		},
	}
	cmd.Flags().Int64Var(&f.ID, "id", 0, "archiver node id (required)")
	cmd.Flags().StringVar(&f.DSN, "dsn", "", "write to this store directly instead of the API")
	mustRequire(cmd, "id")
	return cmd
}

func createListCommand(c command) *cobra.Command {
	f := &ListFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archivers ordered by node id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.List(cmd.Context(), *f)
		},
	}
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum rows (0 uses the server default)")
	cmd.Flags().StringVar(&f.DSN, "dsn", "", "read this store directly instead of the API")
	return cmd
}

func createLoginCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Exchange --username/--password for a saved bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Login(cmd.Context())
		},
	}
}

func createLogoutCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Logout()
		},
	}
}

func createHashPasswordCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash to put in [[auth.users]] password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.HashPassword(args[0])
		},
	}
}

func mustRequire(cmd *cobra.Command, name string) {
	if err := cmd.MarkFlagRequired(name); err != nil {
		panic(err)
	}
}
