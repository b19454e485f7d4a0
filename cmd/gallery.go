package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okian/facegate/internal/domain/gallery"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Show the identities and sample counts of a gallery file",
	Args:  cobra.NoArgs,
	RunE:  runGallery,
}

func init() {
	galleryCmd.Flags().String("path", "", "Gallery file (defaults to gallery_path)")
	galleryCmd.Flags().Bool("json", false, "Output as JSON")
}

type galleryRow struct {
	Identity string `json:"identity"`
	Samples  int    `json:"samples"`
}

func runGallery(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		path = cfg.GalleryPath
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	// Inspect as stored; "all" keeps every sample.
	g, err := gallery.Load(path, gallery.ModeAll)
	if err != nil {
		return err
	}
	return writeGallery(cmd.OutOrStdout(), path, g, asJSON)
}

func writeGallery(out io.Writer, path string, g *gallery.Gallery, asJSON bool) error {
	rows := make([]galleryRow, 0, g.Len())
	for _, id := range g.Identities() {
		rows = append(rows, galleryRow{Identity: id, Samples: g.Samples(id)})
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"path":       path,
			"mode":       g.Mode(),
			"dim":        g.Dim(),
			"embeddings": g.Size(),
			"identities": rows,
		})
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTITY\tSAMPLES")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\n", r.Identity, r.Samples)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d identities, %d embeddings, dim %d, %s mode\n", g.Len(), g.Size(), g.Dim(), g.Mode())
	return nil
}
