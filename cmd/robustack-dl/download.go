package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/code-bush/robustack-dl/internal/archive"
	"github.com/code-bush/robustack-dl/internal/config"
	"github.com/code-bush/robustack-dl/internal/fetch"
	"github.com/code-bush/robustack-dl/internal/observability"
	"github.com/code-bush/robustack-dl/internal/processor"
	"github.com/code-bush/robustack-dl/internal/substack"
)

func newDownloadCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download a publication into a content-addressed archive",
		Long: "Lists the posts of a publication, writes each one in the chosen format and " +
			"records every written file in manifest.json. Files whose content is already " +
			"recorded and intact on disk are skipped.",
		Args: cobra.NoArgs,
		RunE: a.runDownload,
	}

	defaults := config.Defaults()
	f := cmd.Flags()
	f.StringP("url", "u", "", "Publication URL (required)")
	f.StringP("output", "o", defaults["output"].(string), "Archive directory, inside the working directory")
	f.StringP("format", "f", defaults["format"].(string), "Output format: html, md or txt")
	f.BoolP("dry-run", "d", false, "List what would be written without touching the filesystem")
	f.Bool("download-images", false, "Download images and rewrite references to local copies")
	f.String("images-dir", defaults["images-dir"].(string), "Image directory inside the archive")
	f.String("image-quality", defaults["image-quality"].(string), "Image quality: high, medium or low")
	f.Bool("download-files", false, "Download linked attachments")
	f.String("files-dir", defaults["files-dir"].(string), "Attachment directory inside the archive")
	f.String("file-extensions", "", "Comma separated attachment extensions to keep (e.g. pdf,docx)")
	f.Bool("add-source-url", false, "Append the original URL to every post")
	f.Bool("create-archive", false, "Write an index.html linking every archived post")
	f.Int("limit", 0, "Maximum number of posts (0 for all)")
	f.Bool("use-browser", false, "Render post pages in headless Chrome")

	return cmd
}

func (a *app) runDownload(cmd *cobra.Command, _ []string) error {
	if a.cfg.URL == "" {
		return fmt.Errorf("--url is required")
	}
	baseURL, err := substack.NormalizeBaseURL(a.cfg.URL)
	if err != nil {
		return err
	}
	format, err := a.cfg.OutputFormat()
	if err != nil {
		return err
	}
	quality, err := a.cfg.Quality()
	if err != nil {
		return err
	}

	client, err := a.newClient(baseURL)
	if err != nil {
		return err
	}
	var fetcher archive.Fetcher = client
	if a.cfg.UseBrowser {
		fetcher = fetch.NewBrowserFetcher(client)
	}

	orch := archive.New(fetcher, substack.NewLister(client, a.log), processor.Converter{}, archive.Options{
		Output:         a.cfg.Output,
		Format:         format,
		DryRun:         a.cfg.DryRun,
		DownloadImages: a.cfg.DownloadImages,
		ImagesDir:      a.cfg.ImagesDir,
		ImageQuality:   quality,
		DownloadFiles:  a.cfg.DownloadFiles,
		FilesDir:       a.cfg.FilesDir,
		FileExtensions: a.cfg.Extensions(),
		AddSourceURL:   a.cfg.AddSourceURL,
		CreateArchive:  a.cfg.CreateArchive,
		Filter:         a.cfg.Filter(),
		Logger:         a.log,
	})

	a.log.WithFields(logrus.Fields{
		"url":    baseURL,
		"output": a.cfg.Output,
		"format": format,
	}).Info("Starting download")

	summary, err := orch.Run(cmd.Context(), baseURL)
	observability.NewPrinter(cmd.OutOrStdout()).PrintRunSummary(summary)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d posts could not be archived", summary.Failed, summary.Posts)
	}
	return nil
}
