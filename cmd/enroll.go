package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/okian/facegate/internal/adapters/detector"
	"github.com/okian/facegate/internal/domain/gallery"
	"github.com/okian/facegate/internal/enroll"
	"github.com/okian/facegate/pkg/logger"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <dataset-dir>",
	Short: "Build the gallery from a directory of face images",
	Long: `Enroll every image under the dataset directory. An image inside a
subdirectory belongs to the subdirectory's name; a top-level image is named
by its file name up to the first '_', '-' or digit. The largest face of each
image is kept. The output is JSON, or msgpack for a .msgpack path.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	enrollCmd.Flags().StringP("output", "o", "", "Gallery file to write (defaults to gallery_path)")
	enrollCmd.Flags().String("mode", "", "Gallery mode: all or mean (defaults to gallery_mode)")
	enrollCmd.Flags().Bool("quiet", false, "Hide the progress bar")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dir := args[0]

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = cfg.GalleryPath
	}
	modeName, _ := cmd.Flags().GetString("mode")
	if modeName == "" {
		modeName = cfg.GalleryMode
	}
	mode, err := gallery.ParseMode(modeName)
	if err != nil {
		return err
	}

	samples, err := enroll.Scan(dir)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("%w: %s", enroll.ErrNoImages, dir)
	}

	det := detector.New(cfg.DetectorURL,
		detector.WithTimeout(cfg.DetectorTimeout),
		detector.WithMaxSide(cfg.DetectorMaxSide),
		detector.WithJPEGQuality(cfg.DetectorJPEGQuality),
	)
	opts := []enroll.Option{enroll.WithMode(mode), enroll.WithLogger(logger.Get().Named("enroll"))}
	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		opts = append(opts, enroll.WithProgress(progressbar.NewOptions(len(samples),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("Enrolling faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)))
	}

	g, rep, err := enroll.New(det, opts...).Enroll(ctx, samples)
	if err != nil {
		return err
	}
	if err := gallery.Save(output, g); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nImages:     %d\n", rep.Images)
	fmt.Fprintf(out, "Enrolled:   %d\n", rep.Enrolled)
	fmt.Fprintf(out, "No face:    %d\n", rep.NoFace)
	fmt.Fprintf(out, "Failed:     %d\n", rep.Failed)
	fmt.Fprintf(out, "Identities: %d (%s mode, %d embeddings)\n", g.Len(), g.Mode(), g.Size())
	fmt.Fprintf(out, "Written to %s\n", output)
	return nil
}
