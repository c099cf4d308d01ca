// Command dedup removes duplicate records from a document collection.
//
// Records are grouped by the collection's natural key (commit.id for commits,
// id for events); every group keeps its most recent record and the rest are
// deleted. Records whose key cannot be read are deleted outright.
//
// Usage:
//
//	dedup run <commits|events> [since-unix-seconds] [--config configs/development.yaml] [--dry-run] [--resume]
//	dedup audit [--from-beginning]
package main

import (
	"fmt"
	"os"

	apperrors "github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/errors"
	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dedup",
		Short:         "Remove duplicate records from a document collection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	root.AddCommand(newRunCmd())
	root.AddCommand(newAuditCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(apperrors.ExitCode(err))
	}
}
