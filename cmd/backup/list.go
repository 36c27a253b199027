package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/raoulx24/dir-archiver/internal/worker"
)

// printListings renders archives as an aligned table, JSON or YAML.
func printListings(w io.Writer, format string, listings []worker.Listing) error {
	if listings == nil {
		listings = []worker.Listing{}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(listings)

	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(listings); err != nil {
			return err
		}
		return enc.Close()

	default:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tKIND\tCREATED\tSIZE\tSTATUS")
		for _, l := range listings {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				l.Name,
				l.Kind,
				l.Timestamp.Format("2006-01-02 15:04:05"),
				humanize.IBytes(uint64(l.Size)),
				l.Status,
			)
		}
		return tw.Flush()
	}
}
