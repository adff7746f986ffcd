// Package csvnorm implements the built-in Normalizer for delimited
// tabular resources. It runs the staged source file through the
// configured column transforms and writes the result into the ticket's
// output directory.
package csvnorm

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/opertusmundi/normalize/internal/domain/model"
	"github.com/opertusmundi/normalize/internal/domain/normalize"
	"github.com/opertusmundi/normalize/internal/ports"
)

// OutputSuffix is appended to the source file's base name to form the
// output file name.
const OutputSuffix = "_normalized"

// ctxCheckInterval is how many rows are processed between context
// cancellation checks.
const ctxCheckInterval = 1000

// ErrUnsupportedResourceType is returned for resource types the built-in
// normalizer cannot decode. The worker records it as the ticket's failure
// comment.
var ErrUnsupportedResourceType = errors.New("resource type is not supported by this deployment; only csv resources can be normalized")

// Normalizer normalizes delimited tabular files column by column.
type Normalizer struct {
	logger *slog.Logger
}

// Options holds the dependencies for creating a Normalizer.
type Options struct {
	Logger *slog.Logger
}

// New creates a CSV normalizer.
func New(opts Options) *Normalizer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Normalizer{logger: opts.Logger}
}

// Normalize reads the staged source file, applies the payload's column
// transforms, and writes <base>_normalized.csv into req.OutputDir.
func (n *Normalizer) Normalize(ctx context.Context, req ports.NormalizeRequest) (ports.NormalizeResult, error) {
	if req.Payload == nil {
		return ports.NormalizeResult{}, errors.New("ticket has no payload")
	}
	if req.Payload.ResourceType != model.ResourceTypeCSV {
		return ports.NormalizeResult{}, fmt.Errorf("%w: %q", ErrUnsupportedResourceType, req.Payload.ResourceType)
	}

	delimiter, err := resolveDelimiter(req.Payload)
	if err != nil {
		return ports.NormalizeResult{}, err
	}

	header, rows, err := readSource(req.Payload.SourcePath, delimiter)
	if err != nil {
		return ports.NormalizeResult{}, err
	}

	transforms, err := buildTransforms(header, req.Payload.Options)
	if err != nil {
		return ports.NormalizeResult{}, err
	}
	for i, row := range rows {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return ports.NormalizeResult{}, err
			}
		}
		for _, tr := range transforms {
			if tr.column < len(row) {
				row[tr.column] = tr.fn(row[tr.column])
			}
		}
	}
	if req.Payload.Options.NormalizeColumnNames {
		header = normalize.ColumnNames(header)
	}

	outPath := filepath.Join(req.OutputDir, outputFileName(req.Payload))
	size, err := writeOutput(outPath, delimiter, header, rows)
	if err != nil {
		return ports.NormalizeResult{}, err
	}

	n.logger.InfoContext(ctx, "normalized resource",
		"ticket", req.Token,
		"rows", len(rows),
		"output", outPath,
		"filesize", size)

	return ports.NormalizeResult{OutputPath: outPath, Filesize: size}, nil
}

// columnTransform binds one value transform to one column index.
type columnTransform struct {
	column int
	fn     func(string) string
}

// buildTransforms resolves the payload's column selections against the
// header, in the order the transforms are applied. A column named in the
// payload but absent from the header is an error: silently skipping it
// would report success for work that never happened.
func buildTransforms(header []string, opts model.NormalizeOptions) ([]columnTransform, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, ok := index[name]; !ok {
			index[name] = i
		}
	}

	var transforms []columnTransform
	add := func(columns []string, fn func(string) string) error {
		for _, name := range columns {
			i, ok := index[name]
			if !ok {
				return fmt.Errorf("column %q not found in resource", name)
			}
			transforms = append(transforms, columnTransform{column: i, fn: fn})
		}
		return nil
	}

	steps := []struct {
		columns []string
		fn      func(string) string
	}{
		{opts.DateColumns, normalize.Date},
		{opts.PhoneColumns, func(s string) string { return normalize.Phone(s, "") }},
		{opts.SpecialCharacterColumns, normalize.SpecialCharacters},
		{opts.AlphabeticalColumns, normalize.Alphabetical},
		{opts.CaseColumns, normalize.Case},
		{opts.TransliterationColumns, normalize.Transliterate},
		{opts.ValueCleaningColumns, normalize.CleanValue},
	}
	for _, step := range steps {
		if err := add(step.columns, step.fn); err != nil {
			return nil, err
		}
	}
	return transforms, nil
}

// resolveDelimiter returns the payload's explicit delimiter, or sniffs
// one from the source file's first line.
func resolveDelimiter(payload *model.NormalizePayload) (rune, error) {
	if payload.Delimiter != "" {
		runes := []rune(payload.Delimiter)
		if len(runes) != 1 {
			return 0, fmt.Errorf("csv delimiter must be a single character, got %q", payload.Delimiter)
		}
		return runes[0], nil
	}
	return sniffDelimiter(payload.SourcePath)
}

// sniffDelimiter picks the delimiter candidate occurring most often
// outside quoted sections of the first line. Comma wins ties and is the
// fallback for single-column files.
func sniffDelimiter(path string) (rune, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open source file: %w", err)
	}
	defer f.Close()

	firstLine, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("read source file: %w", err)
	}

	candidates := []rune{',', ';', '\t', '|'}
	counts := make(map[rune]int, len(candidates))
	inQuotes := false
	for _, r := range firstLine {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		for _, c := range candidates {
			if r == c {
				counts[r]++
			}
		}
	}

	best := ','
	bestCount := counts[',']
	for _, c := range candidates[1:] {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best, nil
}

func readSource(path string, delimiter rune) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open source file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.Comma = delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("source file is empty")
		}
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	var rows [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row: %w", err)
		}
		rows = append(rows, record)
	}
	return header, rows, nil
}

func writeOutput(path string, delimiter rune, header []string, rows [][]string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}

	w := csv.NewWriter(f)
	w.Comma = delimiter
	if err := w.Write(header); err != nil {
		f.Close()
		return 0, fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return 0, fmt.Errorf("write rows: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close output file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat output file: %w", err)
	}
	return info.Size(), nil
}

// outputFileName derives the output name from the original upload name,
// falling back to the staged file name. The base is everything before
// the first dot.
func outputFileName(payload *model.NormalizePayload) string {
	name := payload.Filename
	if name == "" {
		name = filepath.Base(payload.SourcePath)
	}
	base, _, _ := strings.Cut(name, ".")
	if base == "" {
		base = "resource"
	}
	return base + OutputSuffix + ".csv"
}
