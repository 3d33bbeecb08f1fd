package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"slagie/internal/client"
	"slagie/internal/config"
	"slagie/internal/importer"
	"slagie/internal/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	input := flag.String("input", "", "path to the .xlsx question sheet (required)")
	title := flag.String("title", "", "exam title; defaults to the file name")
	description := flag.String("description", "", "exam description")
	category := flag.String("category", "", "exam category")
	sheet := flag.String("sheet", "", "sheet name; defaults to the active sheet")
	imagesDir := flag.String("images-dir", "", "directory for pictures embedded in the sheet")
	imagesURL := flag.String("images-url", "/static/images", "public URL prefix of -images-dir")
	publish := flag.Bool("publish", false, "publish the exam after saving")
	server := flag.String("server", cfg.Client.BaseURL, "API base URL including /api")
	token := flag.String("token", cfg.Client.Token, "admin bearer token")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "error: -input is required")
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.Logger); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	l := logger.Get()

	f, err := os.Open(*input)
	if err != nil {
		l.Fatal("Failed to open sheet", zap.String("path", *input), zap.Error(err))
	}
	defer f.Close()

	opts := importer.Options{
		Title:       *title,
		Description: *description,
		Category:    *category,
		Sheet:       *sheet,
		Publish:     *publish,
	}
	if opts.Title == "" {
		opts.Title = strings.TrimSuffix(filepath.Base(*input), filepath.Ext(*input))
	}
	if *imagesDir != "" {
		opts.Images = importer.DirImageStore{Dir: *imagesDir, BaseURL: *imagesURL}
	}

	api := client.New(*server, client.WithToken(*token), client.WithTimeout(cfg.Client.Timeout))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := importer.Import(ctx, api, f, opts)
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	if err != nil {
		l.Fatal("Import failed", zap.Error(err))
	}
}
