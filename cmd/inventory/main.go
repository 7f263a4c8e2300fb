package main

import (
	"flag"
	"fleet-hub/domain"
	"fleet-hub/infrastructure/storage"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

// inventory lists, imports and removes agents in the hub's badger store.
// The hub must be stopped unless -ro is used.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	manifest := flag.String("import", "", "YAML agent manifest to import")
	remove := flag.String("delete", "", "agent id to delete")
	readOnly := flag.Bool("ro", false, "open read-only, listing only")
	flag.Parse()

	if err := run(os.Stdout, *dbPath, *manifest, *remove, *readOnly); err != nil {
		fmt.Fprintf(os.Stderr, "inventory: %v\n", err)
		os.Exit(1)
	}
}

func run(out io.Writer, dbPath, manifest, remove string, readOnly bool) error {
	if readOnly && (manifest != "" || remove != "") {
		return fmt.Errorf("-import and -delete need write access")
	}
	db, err := openDB(dbPath, readOnly)
	if err != nil {
		return fmt.Errorf("error while opening badger: %w", err)
	}
	defer func() { _ = db.Close() }()

	repo := storage.NewAgentRepository(db, logs.GetLoggerFromLevel(slog.LevelWarn))
	if manifest != "" {
		n, err := storage.ImportManifest(manifest, repo)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "imported %d agents\n", n)
	}
	if remove != "" {
		if err := repo.Delete(remove); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "deleted %s\n", remove)
	}

	agents, err := repo.List()
	if err != nil {
		return err
	}
	render(out, agents)
	return nil
}

func render(out io.Writer, agents []domain.AgentSummary) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Name", "Type", "Status", "Threads", "Description"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, a := range agents {
		threads := "-"
		if a.ResourceUsage != nil {
			threads = strconv.Itoa(a.ResourceUsage.Threads)
		}
		table.Append([]string{a.ID, a.Name, a.Type, a.Status, threads, a.Description})
	}
	table.Render()
}

func openDB(path string, readOnly bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(readOnly).
		WithLogger(nil).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil && readOnly && strings.Contains(err.Error(), "Log truncate required") {
		// A hub killed mid-write leaves a value log that only a writable open can truncate.
		repaired, rerr := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
		if rerr != nil {
			return nil, fmt.Errorf("repair failed: %w", rerr)
		}
		_ = repaired.Close()
		return badger.Open(opts)
	}
	return db, err
}
