package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"cfsck/internal/api"
	"cfsck/internal/config"
	"cfsck/internal/consistency"
)

const scopeExamples = `  cfsck %[1]s context 7
  cfsck %[1]s filestore 2
  cfsck %[1]s all`

func newListMissingCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "list-missing <scope>",
		Short:   "List blobs referenced by infoitems or attachments but absent from the filestore",
		Example: fmt.Sprintf(scopeExamples, "list-missing"),
		Args:    requireScope,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ListMissing(cmd.Context(), scopeArg(args))
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, resp, func(w io.Writer) error {
					return writeBlobResults(w, "missing", resp)
				})
			})
		},
	}
}

func newListUnassignedCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "list-unassigned <scope>",
		Short:   "List filestore blobs no infoitem or attachment references",
		Example: fmt.Sprintf(scopeExamples, "list-unassigned"),
		Args:    requireScope,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ListUnassigned(cmd.Context(), scopeArg(args))
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, resp, func(w io.Writer) error {
					return writeBlobResults(w, "unassigned", resp)
				})
			})
		},
	}
}

func newRepairCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var (
		policy      string
		failureMode string
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "repair <scope>",
		Short: "Apply a resolver policy to every divergence in scope",
		Long: `Apply a resolver policy to every divergence in scope.

A policy is a comma separated list of condition:action pairs:
  missing_file_for_infoitem    create_dummy | delete
  missing_file_for_attachment  create_dummy | delete
  missing_entry_for_file       create_admin_infoitem | delete

Any other action leaves that condition alone.

Without --force the divergences are listed and nothing is changed.`,
		Example: `  cfsck repair context 7 --policy missing_file_for_infoitem:create_dummy,missing_entry_for_file:delete --force`,
		Args:    requireScope,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(policy) == "" {
				policy = cfg.Repair.DefaultPolicy
			}
			if strings.TrimSpace(policy) == "" {
				return fmt.Errorf("--policy is required (or set repair.default_policy)")
			}
			if _, err := consistency.ParsePolicy(policy); err != nil {
				return err
			}
			if _, err := consistency.ParseFailureMode(failureMode); err != nil {
				return err
			}
			scope := scopeArg(args)

			return withClient(cfg, func(client *api.Client) error {
				if !force {
					return previewRepair(cmd, client, out, scope)
				}
				resp, err := client.Repair(cmd.Context(), api.RepairRequest{
					Scope:       scope,
					Policy:      policy,
					FailureMode: failureMode,
				}, true)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, resp, func(w io.Writer) error {
					return writeRepairSummary(w, resp)
				})
			})
		},
	}

	cmd.Flags().StringVar(&policy, "policy", "", "resolver policy, e.g. missing_entry_for_file:delete")
	cmd.Flags().StringVar(&failureMode, "failure-mode", "", "abort or continue after a failed id (default from repair.failure_mode)")
	cmd.Flags().BoolVar(&force, "force", false, "apply the policy instead of listing what it would touch")
	return cmd
}

type repairPreview struct {
	DryRun     bool                `json:"dry_run" yaml:"dry_run"`
	Missing    map[string][]string `json:"missing" yaml:"missing"`
	Unassigned map[string][]string `json:"unassigned" yaml:"unassigned"`
}

func previewRepair(cmd *cobra.Command, client *api.Client, out *outputFlags, scope string) error {
	missing, err := client.ListMissing(cmd.Context(), scope)
	if err != nil {
		return err
	}
	unassigned, err := client.ListUnassigned(cmd.Context(), scope)
	if err != nil {
		return err
	}

	preview := repairPreview{DryRun: true, Missing: missing.Results, Unassigned: unassigned.Results}
	return writeOutput(cmd.OutOrStdout(), out, preview, func(w io.Writer) error {
		if err := writePlain(w, "dry run: nothing changed; re-run with --force to repair\n"); err != nil {
			return err
		}
		if err := writeBlobResults(w, "missing", missing); err != nil {
			return err
		}
		return writeBlobResults(w, "unassigned", unassigned)
	})
}
