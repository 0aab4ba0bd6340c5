package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/papervault/papervault-backend/internal/app"
	"github.com/papervault/papervault-backend/internal/clients/gcp"
	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/ingestion/dedup"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
)

type idList []string

func (l *idList) String() string { return strings.Join(*l, ",") }
func (l *idList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

// Computes content hashes for file rows created before dedup existed. Reads
// each retained original blob, hashes it, and stamps content_hash.
func main() {
	var fileIDs idList
	var dryRun bool
	var limit int
	flag.Var(&fileIDs, "file", "file_id to backfill (repeatable; default: all rows missing content_hash)")
	flag.BoolVar(&dryRun, "dry-run", false, "print planned updates without writing")
	flag.IntVar(&limit, "limit", 500, "max rows processed when scanning for missing hashes")
	flag.Parse()

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	var rows []*types.File
	if len(fileIDs) > 0 {
		for _, s := range fileIDs {
			id, err := uuid.Parse(strings.TrimSpace(s))
			if err != nil || id == uuid.Nil {
				fmt.Printf("skipping invalid file_id %q\n", s)
				continue
			}
			f, err := application.Repos.Files.GetByID(dbc, id)
			if err != nil {
				fmt.Printf("load file %s: %v\n", id, err)
				continue
			}
			if f != nil {
				rows = append(rows, f)
			}
		}
	} else {
		rows, err = application.Repos.Files.ListMissingContentHash(dbc, limit)
		if err != nil {
			fmt.Printf("list files: %v\n", err)
			os.Exit(1)
		}
	}

	updated := 0
	for _, f := range rows {
		if f == nil || f.ID == uuid.Nil {
			continue
		}
		if f.ContentHash != "" && len(fileIDs) == 0 {
			continue
		}
		data, err := application.Clients.Blob.Read(ctx, gcp.VariantOriginal, f.GUID, f.Extension)
		if err != nil {
			fmt.Printf("read original for file %s: %v\n", f.ID, err)
			continue
		}
		hash := dedup.Hash(data)
		if dryRun {
			fmt.Printf("[dry-run] file %s -> %s\n", f.ID, hash)
			continue
		}
		if err := application.Repos.Files.UpdateFields(dbc, f.ID, map[string]interface{}{
			"content_hash": hash,
		}); err != nil {
			fmt.Printf("update file %s: %v\n", f.ID, err)
			continue
		}
		updated++
		fmt.Printf("backfilled file %s -> %s\n", f.ID, hash)
	}

	fmt.Printf("done; updated=%d scanned=%d\n", updated, len(rows))
}
