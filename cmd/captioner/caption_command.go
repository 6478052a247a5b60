package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ds124wfegd/imagecaption/internal/appServer"
	"github.com/ds124wfegd/imagecaption/internal/entity"
	"github.com/ds124wfegd/imagecaption/internal/pkg/kafka"
	"github.com/ds124wfegd/imagecaption/internal/pkg/models"
	"github.com/ds124wfegd/imagecaption/internal/pkg/preprocess"
	"github.com/ds124wfegd/imagecaption/internal/pkg/storage"
	"github.com/ds124wfegd/imagecaption/internal/pkg/styles"
	"github.com/ds124wfegd/imagecaption/internal/service"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type captionLine struct {
	File string `json:"file"`
	*entity.CaptionResult
	Error string `json:"error,omitempty"`
}

func newCaptionCommand(ctx *commandContext) *cobra.Command {
	var (
		style  string
		asJSON bool
		noBar  bool
	)

	cmd := &cobra.Command{
		Use:   "caption <image>...",
		Short: "Caption local image files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if style == "" {
				style = cfg.Pipeline.DefaultStyle
			}

			set, err := models.Load(appServer.ModelsConfig(cfg), storage.NewFileStorage(cfg.Models.Dir))
			if err != nil {
				return err
			}
			defer set.Close()

			svc := service.NewCaptionService(set, styles.Default(), preprocess.NewPreprocessor(cfg.Pipeline.MaxBytes),
				kafka.NewProducer(kafka.Config{}), service.Options{MaxInFlight: 1})

			var bar *progressbar.ProgressBar
			if !noBar && len(args) > 1 {
				bar = progressbar.NewOptions(
					len(args),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription("Captioning"),
					progressbar.OptionThrottle(100*time.Millisecond),
					progressbar.OptionShowCount(),
					progressbar.OptionOnCompletion(func() { fmt.Fprintln(cmd.ErrOrStderr()) }),
				)
			}

			lines := make([]captionLine, 0, len(args))
			failed := 0
			for _, path := range args {
				line := captionLine{File: path}
				data, err := os.ReadFile(path)
				if err == nil {
					line.CaptionResult, err = svc.Caption(cmd.Context(),
						entity.Image{Filename: filepath.Base(path), Data: data}, entity.StyleID(style))
				}
				if err != nil {
					line.Error = err.Error()
					failed++
				}
				lines = append(lines, line)
				if bar != nil {
					bar.Add(1)
				}
			}

			if err := printCaptions(cmd, lines, asJSON); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d images failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&style, "style", "s", "", "Caption style (creative, technical, simple)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON lines")
	cmd.Flags().BoolVar(&noBar, "no-progress", false, "Disable the progress bar")
	return cmd
}

func printCaptions(cmd *cobra.Command, lines []captionLine, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		for _, line := range lines {
			if err := enc.Encode(line); err != nil {
				return err
			}
		}
		return nil
	}

	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		if line.CaptionResult == nil {
			rows = append(rows, []string{line.File, "error: " + line.Error, "", ""})
			continue
		}
		rows = append(rows, []string{
			line.File,
			line.Caption,
			strconv.FormatFloat(line.Confidence, 'f', 3, 64),
			fmt.Sprintf("%dx%d %s", line.ImageInfo.Width, line.ImageInfo.Height, line.ImageInfo.Format),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"File", "Caption", "Confidence", "Image"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}
