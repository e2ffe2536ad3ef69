package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/thebtf/civicpulse/internal/metrics"
	"github.com/thebtf/civicpulse/pkg/models"
)

// CSV column layout: link, message, date_iso8601, then optional extra columns
// that are ignored.
const minCSVColumns = 3

// Report summarises one CSV ingestion run.
type Report struct {
	Ingested int
	Skipped  int
	Created  int
	Assigned int
}

// IngestCSV reads a snapshot CSV and ingests every row. The first row is a
// header and is discarded. Row-level failures, malformed rows included, are
// skipped and logged; only a failing header read aborts the run.
func (in *Ingestor) IngestCSV(ctx context.Context, r io.Reader) (Report, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return Report{}, nil
		}
		return Report{}, fmt.Errorf("read csv header: %w", err)
	}

	var report Report
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			in.logger.Warn().Err(err).Int("line", line).Msg("Malformed CSV row, skipping")
			report.Skipped++
			continue
		}
		if len(row) < minCSVColumns {
			in.logger.Warn().Int("line", line).Int("columns", len(row)).Msg("CSV row too short, skipping")
			report.Skipped++
			continue
		}

		post := in.postFromRow(row)
		if strings.TrimSpace(post.Content) == "" {
			in.logger.Warn().Int("line", line).Msg("CSV row has no content, skipping")
			report.Skipped++
			continue
		}

		event, created, err := in.IngestPost(ctx, post)
		if err != nil {
			in.logger.Warn().Err(err).Int("line", line).Str("link", post.Link).Msg("Row ingestion failed, skipping")
			metrics.PostsSkipped.WithLabelValues("row_error").Inc()
			report.Skipped++
			continue
		}
		if event == nil {
			report.Skipped++
			continue
		}
		report.Ingested++
		if created {
			report.Created++
		} else {
			report.Assigned++
		}
	}
	return report, nil
}

// postFromRow builds a post from one CSV record. An unparseable date falls
// back to the current time.
func (in *Ingestor) postFromRow(row []string) *models.Post {
	link := strings.TrimSpace(row[0])
	content := row[1]

	date, err := parseDate(strings.TrimSpace(row[2]))
	if err != nil {
		date = in.now()
	}

	return &models.Post{
		Link:    link,
		Content: content,
		Date:    date,
		Source:  SourceFromLink(link),
	}
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
