package generator

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/farmledger/export-api/internal/config"
	"github.com/farmledger/export-api/internal/report"
)

// CSV is the delimited-text strategy. Each non-empty data section (summary,
// detail tables, chart series) becomes its own file; a single non-empty
// section is written to the exact requested path, and with more than one an
// index file describes each generated file and its size.
type CSV struct {
	style config.Style
}

func NewCSV(style config.Style) *CSV {
	return &CSV{style: style}
}

func (g *CSV) Format() report.Format { return report.FormatCSV }

type csvSection struct {
	name     string
	fileName string
	write    func(w *csv.Writer) error
}

func (g *CSV) Generate(ctx context.Context, bundle report.Bundle, opts report.FormatOptions, destPath string) ([]File, error) {
	files, err := g.generate(ctx, bundle, opts, destPath)
	if err != nil {
		return nil, report.NewGenerationError(report.FormatCSV, err)
	}
	return files, nil
}

func (g *CSV) generate(ctx context.Context, bundle report.Bundle, opts report.FormatOptions, destPath string) ([]File, error) {
	delim := ','
	if opts.Delimiter != "" {
		delim = rune(opts.Delimiter[0])
	}

	sections := g.sections(bundle, destPath)

	switch len(sections) {
	case 0:
		// Placeholder so the caller still gets a downloadable artifact.
		if err := g.writeFile(destPath, delim, g.placeholder(bundle)); err != nil {
			return nil, err
		}
		f, err := statFile(destPath, "text/csv")
		if err != nil {
			return nil, err
		}
		return []File{f}, nil

	case 1:
		// Exactly one section: the single file takes the requested path,
		// no index.
		if err := g.writeFile(destPath, delim, sections[0].write); err != nil {
			return nil, err
		}
		f, err := statFile(destPath, "text/csv")
		if err != nil {
			return nil, err
		}
		return []File{f}, nil
	}

	grp, _ := errgroup.WithContext(ctx)
	for _, s := range sections {
		grp.Go(func() error {
			return g.writeFile(s.fileName, delim, s.write)
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	files := make([]File, 0, len(sections)+1)
	for _, s := range sections {
		f, err := statFile(s.fileName, "text/csv")
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	indexPath := sectionPath(destPath, "index")
	if err := g.writeFile(indexPath, delim, func(w *csv.Writer) error {
		if err := w.Write([]string{"File", "Section", "Size (bytes)"}); err != nil {
			return err
		}
		for i, s := range sections {
			rec := []string{files[i].FileName, s.name, strconv.FormatInt(files[i].SizeBytes, 10)}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	idx, err := statFile(indexPath, "text/csv")
	if err != nil {
		return nil, err
	}
	return append(files, idx), nil
}

func (g *CSV) sections(bundle report.Bundle, destPath string) []csvSection {
	var sections []csvSection

	if kpis := bundle.Summary(); len(kpis) > 0 {
		sections = append(sections, csvSection{
			name:     "Summary",
			fileName: sectionPath(destPath, "summary"),
			write: func(w *csv.Writer) error {
				if err := w.Write([]string{"Metric", "Value"}); err != nil {
					return err
				}
				for _, kpi := range kpis {
					if err := w.Write([]string{kpi.Label, formatCellText(kpi.Value, kpi.Kind, g.style)}); err != nil {
						return err
					}
				}
				return nil
			},
		})
	}

	for _, table := range bundle.Tables() {
		if len(table.Rows) == 0 {
			continue
		}
		sections = append(sections, csvSection{
			name:     table.Name,
			fileName: sectionPath(destPath, slug(table.Name)),
			write: func(w *csv.Writer) error {
				header := make([]string, len(table.Columns))
				for i, col := range table.Columns {
					header[i] = col.Title
				}
				if err := w.Write(header); err != nil {
					return err
				}
				for _, row := range table.Rows {
					rec := make([]string, len(table.Columns))
					for i := range table.Columns {
						if i < len(row) {
							rec[i] = formatCellText(row[i], table.Columns[i].Kind, g.style)
						}
					}
					if err := w.Write(rec); err != nil {
						return err
					}
				}
				return nil
			},
		})
	}

	if charts := bundle.Charts(); len(charts) > 0 {
		sections = append(sections, csvSection{
			name:     "Charts",
			fileName: sectionPath(destPath, "charts"),
			write: func(w *csv.Writer) error {
				for _, chart := range charts {
					if err := w.Write([]string{"Chart", chart.Title, chart.Type}); err != nil {
						return err
					}
					header := []string{"Label"}
					for _, s := range chart.Series {
						header = append(header, s.Name)
					}
					if err := w.Write(header); err != nil {
						return err
					}
					for i, label := range chart.Labels {
						rec := []string{label}
						for _, s := range chart.Series {
							if i < len(s.Data) {
								rec = append(rec, strconv.FormatFloat(s.Data[i], 'f', -1, 64))
							} else {
								rec = append(rec, "")
							}
						}
						if err := w.Write(rec); err != nil {
							return err
						}
					}
				}
				return nil
			},
		})
	}

	return sections
}

func (g *CSV) placeholder(bundle report.Bundle) func(w *csv.Writer) error {
	return func(w *csv.Writer) error {
		if err := w.Write([]string{"Report", "Notice"}); err != nil {
			return err
		}
		return w.Write([]string{
			bundle.Template().Label(),
			"no data available for the requested parameters",
		})
	}
}

func (g *CSV) writeFile(path string, delim rune, write func(w *csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	w := csv.NewWriter(f)
	w.Comma = delim
	if err := write(w); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// sectionPath derives a sibling file name: financial_7.csv -> financial_7_summary.csv.
func sectionPath(destPath, suffix string) string {
	ext := filepath.Ext(destPath)
	return strings.TrimSuffix(destPath, ext) + "_" + suffix + ext
}

func slug(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "(", "")
	s = strings.ReplaceAll(s, ")", "")
	return s
}
