package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"stress-detect-go/internal/app"
	"stress-detect-go/internal/core/models"
	"stress-detect-go/internal/core/processor"
	"stress-detect-go/internal/db"
	"stress-detect-go/internal/db/repository"
	"stress-detect-go/internal/services"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true,
}

type batchOptions struct {
	workers int
	subject string
	record  bool
	jsonl   string
}

// batchEntry ist eine Zeile der JSONL-Ausgabe
type batchEntry struct {
	File string `json:"file"`
	*models.DetectionResult
}

// batchSummary zählt die Ergebnisse eines Laufs
type batchSummary struct {
	Files      int
	Analysed   int
	NoFace     int
	Failed     int
	Synthetic  int
	Categories map[models.Category]int
	scoreSum   float64
}

func newBatchSummary() *batchSummary {
	return &batchSummary{Categories: make(map[models.Category]int)}
}

// add zählt ein Ergebnis; aufrufende Stelle serialisiert
func (s *batchSummary) add(res *models.DetectionResult) {
	s.Files++
	switch {
	case res == nil:
		s.Failed++
	case res.Success:
		s.Analysed++
		if res.Synthetic {
			s.Synthetic++
		}
		if dominant, ok := res.Dominant(); ok {
			s.Categories[dominant.Category]++
			s.scoreSum += dominant.Score
		}
	case res.ErrorCode == processor.CodeNoFace:
		s.NoFace++
	default:
		s.Failed++
	}
}

// AverageScore ist der Mittelwert der dominanten Werte aller erfolgreichen Analysen
func (s *batchSummary) AverageScore() float64 {
	if s.Analysed == 0 {
		return 0
	}
	return s.scoreSum / float64(s.Analysed)
}

func (s *batchSummary) print(w io.Writer) {
	fmt.Fprintf(w, "files:      %d\n", s.Files)
	fmt.Fprintf(w, "analysed:   %d (synthetic: %d)\n", s.Analysed, s.Synthetic)
	fmt.Fprintf(w, "no face:    %d\n", s.NoFace)
	fmt.Fprintf(w, "failed:     %d\n", s.Failed)
	for _, cat := range []models.Category{models.CategoryLow, models.CategoryMedium, models.CategoryHigh} {
		fmt.Fprintf(w, "%-11s %d\n", cat.Label()+":", s.Categories[cat])
	}
	fmt.Fprintf(w, "avg score:  %.1f\n", s.AverageScore())
}

func newBatchCmd(root *rootOptions) *cobra.Command {
	opts := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Analyse every image in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := collectImages(args[0])
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no images found in %s", args[0])
			}

			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			pipeline, err := app.NewPipeline(cfg)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			var results *services.ResultService
			if opts.record {
				if opts.subject == "" {
					return fmt.Errorf("--record requires --subject")
				}
				database, err := db.Open(cfg.DB)
				if err != nil {
					return err
				}
				defer db.Close(database)
				results = services.NewResultService(repository.NewSQLiteRepository(database), nil, nil)
			}

			var out io.Writer
			if opts.jsonl != "" {
				f, err := os.Create(opts.jsonl)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", opts.jsonl, err)
				}
				defer f.Close()
				out = f
			}

			bar := progressbar.NewOptions(len(files),
				progressbar.OptionSetDescription("Analysing"),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)

			summary, err := runBatch(cmd.Context(), pipeline.Processor, files, opts, func(file string, res *models.DetectionResult) {
				_ = bar.Add(1)
				if results != nil && res != nil {
					results.Record(opts.subject, services.SourceCLI, res)
				}
				if out != nil && res != nil {
					line, err := json.Marshal(batchEntry{File: file, DetectionResult: withoutImage(res)})
					if err == nil {
						_, _ = out.Write(append(line, '\n'))
					}
				}
			})
			_ = bar.Finish()
			summary.print(cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 4, "Images analysed in parallel")
	cmd.Flags().StringVarP(&opts.subject, "subject", "s", "", "Subject id for all images")
	cmd.Flags().BoolVar(&opts.record, "record", false, "Store results in the history database (requires --subject)")
	cmd.Flags().StringVar(&opts.jsonl, "jsonl", "", "Write one JSON result per line to this file")
	return cmd
}

// Analyzer ist der Teil des Prozessors, den der Batch-Lauf braucht
type Analyzer interface {
	ProcessBytes(ctx context.Context, data []byte, subject string) (*models.DetectionResult, error)
}

// runBatch analysiert files parallel; done wird serialisiert je Datei aufgerufen.
// Nur ein Abbruch des Kontexts beendet den Lauf vorzeitig.
func runBatch(ctx context.Context, a Analyzer, files []string, opts *batchOptions, done func(string, *models.DetectionResult)) (*batchSummary, error) {
	workers := opts.workers
	if workers <= 0 {
		workers = 1
	}

	summary := newBatchSummary()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, file := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			var res *models.DetectionResult
			data, err := os.ReadFile(file)
			if err != nil {
				log.Warnf("Skipping %s: %v", file, err)
			} else {
				res, _ = a.ProcessBytes(gctx, data, opts.subject)
			}

			mu.Lock()
			defer mu.Unlock()
			summary.add(res)
			done(file, res)
			return gctx.Err()
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return summary, fmt.Errorf("batch interrupted: %w", err)
	}
	return summary, nil
}

// collectImages liefert alle Bilddateien eines Verzeichnisses (nicht rekursiv), sortiert
func collectImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func withoutImage(res *models.DetectionResult) *models.DetectionResult {
	c := *res
	c.AnnotatedImage = nil
	return &c
}
