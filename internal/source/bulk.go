package source

import (
	"context"
	"encoding/csv"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/lensiq/esg-pipeline/internal/model"
	"github.com/lensiq/esg-pipeline/internal/ratelimit"
	"github.com/lensiq/esg-pipeline/internal/validate"
)

// BulkOptions configures a bulk-file adapter. Providers like
// Sustainalytics distribute periodic score files over FTP rather than a
// query API; the adapter downloads the file once per cycle and filters it
// to the requested companies and range.
type BulkOptions struct {
	// Name is the source name records are tagged with.
	Name string

	// URL is the ftp:// location of the score file. The extension picks
	// the parser: .xlsx uses the spreadsheet reader, anything else is
	// treated as CSV.
	URL string

	// Latin1 decodes CSV content from ISO-8859-1. Legacy provider
	// exports predate their UTF-8 migration.
	Latin1 bool

	Timeout time.Duration
}

type bulkAdapter struct {
	opts      BulkOptions
	limits    *ratelimit.Registry
	validator *validate.Validator
}

// NewBulk builds an FTP bulk-file adapter.
func NewBulk(opts BulkOptions, limits *ratelimit.Registry, validator *validate.Validator) Adapter {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	return &bulkAdapter{opts: opts, limits: limits, validator: validator}
}

func (b *bulkAdapter) Name() string { return b.opts.Name }

func (b *bulkAdapter) Ingest(ctx context.Context, companyIDs []string, start, end time.Time) ([]model.Record, error) {
	if b.limits != nil && !b.limits.Allow(b.opts.Name) {
		zap.L().Warn("source: bulk fetch rate limited, skipping cycle",
			zap.String("source", b.opts.Name),
		)
		return nil, nil
	}

	local, err := b.download(ctx)
	if err != nil {
		return nil, err
	}
	defer os.Remove(local) //nolint:errcheck

	var rows [][]string
	if strings.EqualFold(filepath.Ext(b.opts.URL), ".xlsx") {
		rows, err = readXLSXRows(local)
	} else {
		rows, err = b.readCSVRows(local)
	}
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(companyIDs))
	for _, id := range companyIDs {
		wanted[id] = true
	}

	var out []model.Record
	for i, row := range rows {
		rec, err := parseBulkRow(row)
		if err != nil {
			zap.L().Debug("source: skipping malformed bulk row",
				zap.String("source", b.opts.Name),
				zap.Int("row", i+1),
				zap.Error(err),
			)
			continue
		}
		if !wanted[rec.CompanyID] {
			continue
		}
		if rec.Timestamp.Before(start) || rec.Timestamp.After(end) {
			continue
		}
		rec.DataSource = b.opts.Name
		if kept, ok := screen(b.validator, rec, b.opts.Name); ok {
			out = append(out, kept)
		}
	}

	zap.L().Info("source: bulk file ingested",
		zap.String("source", b.opts.Name),
		zap.Int("rows", len(rows)),
		zap.Int("records", len(out)),
	)
	return out, nil
}

// download retrieves the score file to a temp path.
func (b *bulkAdapter) download(ctx context.Context) (string, error) {
	u, err := url.Parse(b.opts.URL)
	if err != nil {
		return "", eris.Wrap(err, "source: parse bulk url")
	}
	if u.Scheme != "ftp" {
		return "", eris.Errorf("source: expected ftp scheme, got %q", u.Scheme)
	}
	host := u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(b.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return "", eris.Wrap(err, "source: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		return "", eris.Wrap(err, "source: ftp login")
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return "", eris.Wrap(err, "source: ftp retrieve")
	}
	defer resp.Close() //nolint:errcheck

	tmp, err := os.CreateTemp("", b.opts.Name+"-*"+filepath.Ext(u.Path))
	if err != nil {
		return "", eris.Wrap(err, "source: create temp file")
	}
	defer tmp.Close() //nolint:errcheck

	if _, err := io.Copy(tmp, resp); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", eris.Wrap(err, "source: write temp file")
	}
	return tmp.Name(), nil
}

func (b *bulkAdapter) readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "source: open bulk file")
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	if b.opts.Latin1 {
		r = charmap.ISO8859_1.NewDecoder().Reader(f)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "source: parse csv")
	}
	return dropHeader(rows), nil
}

func readXLSXRows(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "source: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("source: xlsx has no sheets")
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = c.Value
		}
		rows = append(rows, cells)
	}
	return dropHeader(rows), nil
}

// dropHeader removes a leading header row, detected by a non-numeric
// score column.
func dropHeader(rows [][]string) [][]string {
	if len(rows) == 0 {
		return rows
	}
	first := rows[0]
	if len(first) > 2 {
		if _, err := strconv.ParseFloat(strings.TrimSpace(first[2]), 64); err != nil {
			return rows[1:]
		}
	}
	return rows
}

// parseBulkRow maps one file row to a record. Expected columns:
// company_id, date, environmental, social, governance, combined,
// quality, confidence[, sector[, region]].
func parseBulkRow(row []string) (model.Record, error) {
	if len(row) < 8 {
		return model.Record{}, eris.Errorf("source: bulk row has %d columns, want at least 8", len(row))
	}

	companyID := strings.TrimSpace(row[0])
	if companyID == "" {
		return model.Record{}, eris.New("source: bulk row missing company id")
	}

	ts, err := time.Parse("2006-01-02", strings.TrimSpace(row[1]))
	if err != nil {
		return model.Record{}, eris.Wrap(err, "source: parse bulk row date")
	}

	vals := make([]float64, 6)
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+2]), 64)
		if err != nil {
			return model.Record{}, eris.Wrapf(err, "source: parse bulk row column %d", i+2)
		}
		vals[i] = v
	}

	rec := model.Record{
		CompanyID:          companyID,
		Timestamp:          ts.UTC(),
		EnvironmentalScore: vals[0],
		SocialScore:        vals[1],
		GovernanceScore:    vals[2],
		CombinedScore:      vals[3],
		DataQualityScore:   vals[4],
		ConfidenceScore:    vals[5],
	}
	if len(row) > 8 {
		rec.Sector = strings.TrimSpace(row[8])
	}
	if len(row) > 9 {
		rec.Region = strings.TrimSpace(row[9])
	}
	return rec, nil
}
