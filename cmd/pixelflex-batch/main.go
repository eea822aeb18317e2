// Command pixelflex-batch converts image files from the command line and
// writes the results as a zip archive or into a directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/oziev02/pixelflex/internal/app"
	"github.com/oziev02/pixelflex/internal/archive"
	"github.com/oziev02/pixelflex/internal/config"
	"github.com/oziev02/pixelflex/internal/domain"
	"github.com/oziev02/pixelflex/internal/encoder"
	"github.com/oziev02/pixelflex/internal/observability"
	"github.com/oziev02/pixelflex/internal/probe"
	"github.com/oziev02/pixelflex/internal/repo"
	"github.com/oziev02/pixelflex/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	defaults := cfg.Image.DefaultOptions()

	format := flag.String("format", string(defaults.Format), "output format: png, jpeg, webp, svg, gif, bmp")
	quality := flag.Int("quality", defaults.Quality, "quality for lossy formats (1-100)")
	width := flag.Int("width", 0, "target width in pixels (0 keeps the source)")
	height := flag.Int("height", 0, "target height in pixels (0 keeps the source)")
	keepAspect := flag.Bool("keep-aspect", true, "keep the source aspect ratio")
	background := flag.String("background", "", "background color, e.g. #ffffff")
	enhance := flag.Bool("enhance", false, "enhance images through Gemini before converting")
	out := flag.String("out", "", "output zip path (default pixelflex-converted-<ms>.zip)")
	dir := flag.String("dir", "", "write converted files into this directory instead of a zip")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] image...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	f, err := domain.ParseFormat(*format)
	if err != nil {
		log.Fatal(err)
	}
	opts := domain.ConversionOptions{
		Format:              f,
		Quality:             *quality,
		Width:               *width,
		Height:              *height,
		MaintainAspectRatio: *keepAspect,
		Background:          *background,
		AIEnhance:           *enhance,
	}
	if err := opts.Validate(); err != nil {
		log.Fatal(err)
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := observability.NewLogger(level)

	store := repo.NewMemoryRepository()
	processor := service.NewProcessorService(encoder.New(store), app.NewGeminiClient(cfg, logger), logger)
	queue := service.NewQueueService(store, probe.New(cfg.Image.MaxFileSize), processor, nil, nil, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files := make([]domain.SourceFile, 0, flag.NArg())
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("skipping %s: %v", path, err)
			continue
		}
		files = append(files, domain.SourceFile{Name: filepath.Base(path), Data: data})
	}

	if _, err := queue.Add(ctx, files); err != nil {
		log.Fatalf("failed to queue files: %v", err)
	}

	runErr := queue.RunAll(ctx, opts)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Fatalf("conversion failed: %v", runErr)
	}

	failed := 0
	for _, item := range queue.List() {
		switch item.Status {
		case domain.StatusCompleted:
			fmt.Fprintf(os.Stderr, "ok      %s\n", item.Name)
		case domain.StatusFailed:
			failed++
			fmt.Fprintf(os.Stderr, "failed  %s: %s\n", item.Name, item.Error)
		default:
			fmt.Fprintf(os.Stderr, "skipped %s\n", item.Name)
		}
	}

	if err := write(ctx, queue, *dir, *out); err != nil {
		log.Fatal(err)
	}
	if failed > 0 || runErr != nil {
		os.Exit(1)
	}
}

func write(ctx context.Context, queue service.QueueService, dir, out string) error {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		written := 0
		for _, item := range queue.List() {
			if !item.IsCompleted() {
				continue
			}
			dl, err := queue.Output(ctx, item.ID)
			if err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(dir, archive.EntryName(item.Name, item.OutputFormat)), dl.Data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", item.Name, err)
			}
			written++
		}
		if written == 0 {
			return domain.ErrEmptyArchive
		}
		fmt.Fprintf(os.Stderr, "wrote %d files to %s\n", written, dir)
		return nil
	}

	dl, err := queue.Archive(ctx)
	if err != nil {
		return err
	}
	if out == "" {
		out = archive.ArchiveName(time.Now())
	}
	if err := os.WriteFile(out, dl.Data, 0644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", out)
	return nil
}
