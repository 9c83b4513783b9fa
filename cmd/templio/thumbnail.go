package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hazyhaar/templio/raster"
	"github.com/hazyhaar/templio/render"
	"github.com/hazyhaar/templio/templates"
)

func thumbnailCommand() *cli.Command {
	return &cli.Command{
		Name:  "thumbnail",
		Usage: "Render an HTML file to a thumbnail image",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "file",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output image path (default: FILE with .png or .jpg)",
			},
		},
		Action: runThumbnail,
	}
}

func runThumbnail(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("usage: templio thumbnail FILE [-o out.png]")
	}
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	logger := slog.Default()
	rcfg := cfg.Templates.Render
	rcfg.Logger = logger
	mgr := render.NewManager(rcfg)
	defer mgr.Close()

	pipeline := templates.NewPipeline(cfg.Templates, render.NewChrome(mgr), logger)
	res, err := pipeline.Run(ctx, string(src), nil)
	if err != nil {
		return err
	}
	if res.Warning != nil {
		return res.Warning
	}

	data, err := dataURIBytes(res.Screenshot)
	if err != nil {
		return err
	}
	out := cmd.String("output")
	if out == "" {
		ext := ".png"
		if res.Format == raster.FormatJPEG {
			ext = ".jpg"
		}
		out = strings.TrimSuffix(path, ".html") + ext
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	logger.Info("templio: thumbnail written", "path", out, "format", res.Format,
		"bytes", len(data), "fallback", res.Fallback, "duration_ms", res.Duration.Milliseconds(),
		"images_inlined", res.Images.Inlined, "images_failed", res.Images.Failed)
	return nil
}

func dataURIBytes(uri string) ([]byte, error) {
	_, payload, ok := strings.Cut(uri, ";base64,")
	if !ok {
		return nil, fmt.Errorf("not a base64 data URI")
	}
	return base64.StdEncoding.DecodeString(payload)
}
