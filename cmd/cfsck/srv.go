package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cfsck/internal/blobstore"
	"cfsck/internal/config"
	"cfsck/internal/configdb"
	"cfsck/internal/consistency"
	"cfsck/internal/server"
	"cfsck/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the cfsck API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	if cfg.ConfigDBPath == "" {
		return fmt.Errorf("config db path is required")
	}
	logger := slog.Default().With("component", "server")

	addr, err := server.ListenAddr(cfg.APIURL)
	if err != nil {
		return err
	}
	mode, err := consistency.ParseFailureMode(cfg.Repair.FailureMode)
	if err != nil {
		return err
	}

	logger.Info("opening config database", "path", cfg.ConfigDBPath)
	dir, err := configdb.Open(cfg.ConfigDBPath)
	if err != nil {
		return err
	}
	defer dir.Close()

	pool := store.NewPool(dir, nil, logger)
	defer pool.Close()

	srv, err := server.New(addr, server.Options{
		Registry: dir,
		Deps: consistency.Deps{
			Stores:      blobstore.NewFactory(dir, s3ClientFunc(cfg.S3), logger),
			Documents:   pool.Documents(),
			Attachments: pool.Attachments(),
		},
		FailureMode: mode,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

// s3ClientFunc defers building the S3 client until an s3:// filestore is
// first opened.
func s3ClientFunc(s3cfg config.S3Config) blobstore.S3ClientFunc {
	return func(ctx context.Context) (blobstore.S3API, error) {
		client, err := blobstore.NewS3Client(ctx, blobstore.S3Options{
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			MaxRetries:      s3cfg.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}
