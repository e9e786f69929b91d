package main

import (
	"io"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"cfsck/internal/api"
	"cfsck/internal/config"
)

func newContextCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "List and register contexts",
	}
	cmd.AddCommand(newContextListCmd(cfg, out))
	cmd.AddCommand(newContextRegisterCmd(cfg, out))
	return cmd
}

func newContextListCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var filestoreID, databaseID int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contexts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if filestoreID > 0 {
				query.Set("filestore", strconv.Itoa(filestoreID))
			}
			if databaseID > 0 {
				query.Set("database", strconv.Itoa(databaseID))
			}
			return withClient(cfg, func(client *api.Client) error {
				contexts, err := client.ListContexts(cmd.Context(), query)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, contexts, func(w io.Writer) error {
					return writeContextList(w, contexts)
				})
			})
		},
	}

	cmd.Flags().IntVar(&filestoreID, "filestore", 0, "only contexts stored in this filestore")
	cmd.Flags().IntVar(&databaseID, "database", 0, "only contexts kept in this database")
	return cmd
}

func newContextRegisterCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var req api.ContextRequest

	cmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Register a context on a filestore and database",
		Args:  requireExactlyArgs(1, "context name is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			return withClient(cfg, func(client *api.Client) error {
				created, err := client.RegisterContext(cmd.Context(), req)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, created, func(w io.Writer) error {
					return writeContextList(w, []api.ContextResponse{created})
				})
			})
		},
	}

	cmd.Flags().IntVar(&req.ID, "id", 0, "context id (default: next free id)")
	cmd.Flags().IntVar(&req.FilestoreID, "filestore", 0, "filestore id")
	cmd.Flags().IntVar(&req.DatabaseID, "database", 0, "database id")
	cmd.Flags().BoolVar(&req.Disabled, "disabled", false, "register the context disabled")
	_ = cmd.MarkFlagRequired("filestore")
	_ = cmd.MarkFlagRequired("database")
	return cmd
}

func newFilestoreCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filestore",
		Short: "List and register filestores",
	}
	cmd.AddCommand(newFilestoreListCmd(cfg, out))
	cmd.AddCommand(newFilestoreRegisterCmd(cfg, out))
	return cmd
}

func newFilestoreListCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List filestores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				filestores, err := client.ListFilestores(cmd.Context())
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, filestores, func(w io.Writer) error {
					return writeFilestoreList(w, filestores)
				})
			})
		},
	}
}

func newFilestoreRegisterCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var maxContexts int

	cmd := &cobra.Command{
		Use:     "register <uri>",
		Short:   "Register a file:// or s3:// filestore",
		Example: "  cfsck filestore register file:///var/opt/filestore\n  cfsck filestore register s3://bucket/prefix --max-contexts 5000",
		Args:    requireExactlyArgs(1, "filestore uri is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				created, err := client.RegisterFilestore(cmd.Context(), api.FilestoreRequest{URI: args[0], MaxContexts: maxContexts})
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, created, func(w io.Writer) error {
					return writeFilestoreList(w, []api.FilestoreResponse{created})
				})
			})
		},
	}

	cmd.Flags().IntVar(&maxContexts, "max-contexts", 0, "maximum number of contexts (0 = unlimited)")
	return cmd
}

func newDatabaseCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "database",
		Short: "List and register context databases",
	}
	cmd.AddCommand(newDatabaseListCmd(cfg, out))
	cmd.AddCommand(newDatabaseRegisterCmd(cfg, out))
	return cmd
}

func newDatabaseListCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List context databases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				databases, err := client.ListDatabases(cmd.Context())
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, databases, func(w io.Writer) error {
					return writeDatabaseList(w, databases)
				})
			})
		},
	}
}

func newDatabaseRegisterCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "register <name> <path>",
		Short: "Register a SQLite context database",
		Args:  requireExactlyArgs(2, "database name and path are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				created, err := client.RegisterDatabase(cmd.Context(), api.DatabaseRequest{Name: args[0], Path: args[1]})
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, created, func(w io.Writer) error {
					return writeDatabaseList(w, []api.DatabaseResponse{created})
				})
			})
		},
	}
}
