package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/715d/rootcheck/internal/store"
)

func newImportCommand() *cobra.Command {
	var storeDir string
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Load function bodies into the body store",
		Long: `import reads functions as a stream of JSON values, validates every body,
and stores them. Without arguments, or with "-", it reads standard input.
A function that is already stored is replaced and keeps its key.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return errWithCode(err, exitError)
			}
			if cmd.Flags().Changed("store") {
				cfg.Inputs.Store = storeDir
			}
			if len(args) == 0 {
				args = []string{"-"}
			}
			return importBodies(cmd, cfg.Inputs.Store, args)
		},
	}
	cmd.Flags().StringVar(&storeDir, "store", "", "Body store directory")
	return cmd
}

func importBodies(cmd *cobra.Command, dir string, files []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errWithCode(fmt.Errorf("create store directory: %w", err), exitError)
	}
	db, err := store.Open(store.Options{Dir: dir})
	if err != nil {
		return errWithCode(err, exitError)
	}
	defer db.Close()

	var total store.ImportResult
	for _, name := range files {
		res, err := importFile(cmd.InOrStdin(), db, name)
		if err != nil {
			return errWithCode(err, exitError)
		}
		slog.Info("imported bodies", "file", name, "read", res.Read, "added", res.Added, "unchanged", res.Unchanged)
		total.Read += res.Read
		total.Added += res.Added
		total.Unchanged += res.Unchanged
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d functions (%d new, %d unchanged), store holds %d\n",
		total.Read, total.Added, total.Unchanged, db.Len())
	return nil
}

func importFile(stdin io.Reader, db *store.DB, name string) (store.ImportResult, error) {
	if name == "-" {
		res, err := db.Import(stdin)
		if err != nil {
			return res, fmt.Errorf("import stdin: %w", err)
		}
		return res, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return store.ImportResult{}, fmt.Errorf("open bodies: %w", err)
	}
	defer f.Close()
	res, err := db.Import(f)
	if err != nil {
		return res, fmt.Errorf("import %s: %w", name, err)
	}
	return res, nil
}
