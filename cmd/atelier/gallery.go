package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/CZERTAINLY/Atelier/internal/catalog"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "gallery lists generated images, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := catalog.New(config.Storage.Outputs, config.Gallery.Limit)
		if err != nil {
			return err
		}
		images, err := cat.List(cmd.Context(), flagLimit)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"images": images,
			"total":  len(images),
		})
	},
}
