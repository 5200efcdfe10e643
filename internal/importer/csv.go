// Package importer loads training samples from CSV files into the knowledge
// base.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chatforge/nlukit/internal/metrics"
	"github.com/chatforge/nlukit/internal/nlu"
	"github.com/chatforge/nlukit/internal/storage"
	"github.com/chatforge/nlukit/pkg/types"
)

const (
	columnText     = "text"
	columnLanguage = "language"
	columnIntent   = "intent"

	// skipIntent marks rows excluded from import on purpose.
	skipIntent = "none"
)

// RowFailure records one CSV row that could not be imported.
type RowFailure struct {
	Row    int    `json:"row"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// Report summarises one import run. Per-row failures are collected, never
// fatal.
type Report struct {
	Imported int          `json:"imported"`
	Skipped  int          `json:"skipped"`
	Failed   int          `json:"failed"`
	Failures []RowFailure `json:"failures,omitempty"`
}

// Importer ingests CSV sample files.
//
// Row contract: every row needs text and language columns; any other column
// whose header matches a stored entity name is treated as that entity's
// value for the sample (whole-sample annotation, no span). Rows whose intent
// equals "none" are skipped, as are rows whose text is already stored.
// Unknown language codes fall back to the default language with a warning.
type Importer struct {
	store  storage.Store
	linker *nlu.Linker
	logger zerolog.Logger
}

// New creates a CSV importer.
func New(store storage.Store, linker *nlu.Linker, logger zerolog.Logger) *Importer {
	return &Importer{store: store, linker: linker, logger: logger}
}

// ImportCSV reads the CSV document and imports its rows as training samples.
// A malformed header or an unreadable stream fails the call; row-level
// problems are recorded in the report and the loop continues.
func (i *Importer) ImportCSV(ctx context.Context, r io.Reader) (*Report, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for idx, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = idx
	}
	if _, ok := columns[columnText]; !ok {
		return nil, fmt.Errorf("%w: CSV header is missing the text column", storage.ErrInvalidInput)
	}
	if _, ok := columns[columnLanguage]; !ok {
		return nil, fmt.Errorf("%w: CSV header is missing the language column", storage.ErrInvalidInput)
	}

	entityColumns, err := i.resolveEntityColumns(ctx, columns)
	if err != nil {
		return nil, err
	}

	languages, err := i.loadLanguages(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for row := 2; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			i.recordFailure(report, row, "", fmt.Sprintf("malformed row: %v", err))
			continue
		}

		text := field(record, columns[columnText])
		if text == "" {
			i.recordFailure(report, row, "", "empty text column")
			continue
		}

		if intentIdx, ok := columns[columnIntent]; ok && field(record, intentIdx) == skipIntent {
			report.Skipped++
			metrics.ImportRows.WithLabelValues("skipped").Inc()
			continue
		}

		exists, err := i.sampleExists(ctx, text)
		if err != nil {
			i.recordFailure(report, row, text, err.Error())
			continue
		}
		if exists {
			report.Skipped++
			metrics.ImportRows.WithLabelValues("skipped").Inc()
			continue
		}

		languageID := i.resolveLanguage(languages, field(record, columns[columnLanguage]), text)

		sample := &types.Sample{Text: text, Type: types.SampleTrain, LanguageID: languageID}
		if err := i.store.Samples().Create(ctx, sample); err != nil {
			i.recordFailure(report, row, text, err.Error())
			continue
		}

		annotations := buildAnnotations(record, entityColumns)
		if _, err := i.linker.LinkSampleAnnotations(ctx, sample, annotations); err != nil {
			i.recordFailure(report, row, text, err.Error())
			continue
		}

		report.Imported++
		metrics.ImportRows.WithLabelValues("imported").Inc()
	}

	return report, nil
}

// resolveEntityColumns matches non-reserved header columns against stored
// entity names. Columns matching nothing are ignored with a warning.
func (i *Importer) resolveEntityColumns(ctx context.Context, columns map[string]int) (map[string]int, error) {
	candidates := make([]string, 0, len(columns))
	for name := range columns {
		if name == columnText || name == columnLanguage {
			continue
		}
		candidates = append(candidates, name)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	stored, err := i.store.Entities().FindByNames(ctx, candidates)
	if err != nil {
		return nil, err
	}
	known := types.EntityMap(stored)

	out := make(map[string]int)
	for _, name := range candidates {
		if _, ok := known[name]; ok {
			out[name] = columns[name]
			continue
		}
		i.logger.Warn().Str("column", name).
			Msg("CSV column matches no stored entity, ignoring")
	}
	return out, nil
}

func (i *Importer) loadLanguages(ctx context.Context) (map[string]*types.Language, error) {
	all, err := i.store.Languages().List(ctx)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]*types.Language, len(all))
	for _, lang := range all {
		byCode[lang.Code] = lang
	}
	return byCode, nil
}

// resolveLanguage maps a row's language code to a stored language, falling
// back to the default when the code is unknown.
func (i *Importer) resolveLanguage(byCode map[string]*types.Language, code, text string) string {
	if lang, ok := byCode[code]; ok {
		return lang.ID
	}

	for _, lang := range byCode {
		if lang.IsDefault {
			i.logger.Warn().Str("language", code).Str("text", text).
				Msg("unknown language code, falling back to default")
			return lang.ID
		}
	}

	i.logger.Warn().Str("language", code).Str("text", text).
		Msg("unknown language code and no default configured")
	return ""
}

func (i *Importer) sampleExists(ctx context.Context, text string) (bool, error) {
	page, err := i.store.Samples().Find(ctx,
		storage.SampleFilter{Text: text},
		storage.ListOptions{Limit: 1})
	if err != nil {
		return false, err
	}
	return page.Total > 0, nil
}

func (i *Importer) recordFailure(report *Report, row int, text, reason string) {
	report.Failed++
	report.Failures = append(report.Failures, RowFailure{Row: row, Text: text, Reason: reason})
	metrics.ImportRows.WithLabelValues("failed").Inc()
	i.logger.Warn().Int("row", row).Str("reason", reason).Msg("failed to import CSV row")
}

// buildAnnotations turns the row's entity columns into whole-sample
// annotations, skipping empty cells.
func buildAnnotations(record []string, entityColumns map[string]int) []types.Annotation {
	out := make([]types.Annotation, 0, len(entityColumns))
	for name, idx := range entityColumns {
		value := field(record, idx)
		if value == "" {
			continue
		}
		out = append(out, types.Annotation{Entity: name, Value: value})
	}
	return out
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
