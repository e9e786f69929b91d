package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"cfsck/internal/api"
	"cfsck/internal/format"
)

// outputFlags holds the persistent --json and --yaml switches.
type outputFlags struct {
	json bool
	yaml bool
}

// formatter returns the structured formatter selected on the command line,
// or nil for plain text.
func (o *outputFlags) formatter() format.Formatter {
	switch {
	case o == nil:
		return nil
	case o.json:
		return format.JSONFormatter{Indent: true}
	case o.yaml:
		return format.YAMLFormatter{}
	default:
		return nil
	}
}

func writeOutput(w io.Writer, out *outputFlags, payload any, plain func(io.Writer) error) error {
	if f := out.formatter(); f != nil {
		return f.Write(w, payload)
	}
	return plain(w)
}

func writePlain(w io.Writer, layout string, args ...any) error {
	_, err := fmt.Fprintf(w, layout, args...)
	return err
}

// writeBlobResults prints one block per context in ascending id order.
func writeBlobResults(w io.Writer, label string, resp api.ListResponse) error {
	if len(resp.Results) == 0 {
		return writePlain(w, "no %s blobs\n", label)
	}

	ids, err := sortedContextIDs(resp.Results)
	if err != nil {
		return err
	}

	total := 0
	for _, id := range ids {
		blobs := resp.Results[strconv.Itoa(id)]
		total += len(blobs)
		if err := writePlain(w, "context %d: %s %s\n", id, humanize.Comma(int64(len(blobs))), label); err != nil {
			return err
		}
		for _, blob := range blobs {
			if err := writePlain(w, "  %s\n", blob); err != nil {
				return err
			}
		}
	}
	return writePlain(w, "total: %s %s in %d context(s)\n", humanize.Comma(int64(total)), label, len(ids))
}

func writeRepairSummary(w io.Writer, resp api.RepairResponse) error {
	if err := writePlain(w, "repaired %s: %d context(s) with policy %s\n", resp.Scope, resp.Contexts, resp.Policy); err != nil {
		return err
	}
	if len(resp.Skipped) > 0 {
		if err := writePlain(w, "skipped %d context(s) that could not be read: %v\n", len(resp.Skipped), resp.Skipped); err != nil {
			return err
		}
	}
	ids, err := sortedContextIDs(resp.Usage)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := writePlain(w, "context %d: %s used\n", id, humanize.IBytes(uint64(resp.Usage[strconv.Itoa(id)]))); err != nil {
			return err
		}
	}
	return nil
}

// sortedContextIDs returns the numeric keys of a per-context map in ascending order.
func sortedContextIDs[V any](m map[string]V) ([]int, error) {
	ids := make([]int, 0, len(m))
	for key := range m {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("unexpected context id %q", key)
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func writeContextList(w io.Writer, contexts []api.ContextResponse) error {
	for _, c := range contexts {
		state := "enabled"
		if !c.Enabled {
			state = "disabled"
		}
		if err := writePlain(w, "%d\t%s\tfilestore=%d database=%d %s, created %s\n",
			c.ID, c.Name, c.FilestoreID, c.DatabaseID, state, formatAge(c.CreatedAt)); err != nil {
			return err
		}
	}
	return nil
}

func writeFilestoreList(w io.Writer, filestores []api.FilestoreResponse) error {
	for _, fs := range filestores {
		limit := "unlimited"
		if fs.MaxContexts > 0 {
			limit = humanize.Comma(int64(fs.MaxContexts))
		}
		if err := writePlain(w, "%d\t%s\tmax_contexts=%s, created %s\n", fs.ID, fs.URI, limit, formatAge(fs.CreatedAt)); err != nil {
			return err
		}
	}
	return nil
}

func writeDatabaseList(w io.Writer, databases []api.DatabaseResponse) error {
	for _, db := range databases {
		if err := writePlain(w, "%d\t%s\t%s, created %s\n", db.ID, db.Name, db.Path, formatAge(db.CreatedAt)); err != nil {
			return err
		}
	}
	return nil
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return humanize.Time(t)
}
