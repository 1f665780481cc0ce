package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/carnet-api/internal/models"
	appErrors "github.com/noah-isme/carnet-api/pkg/errors"
	"github.com/noah-isme/carnet-api/pkg/export"
)

// Supported export formats.
const (
	ExportFormatXLSX = "xlsx"
	ExportFormatCSV  = "csv"
)

const exportTimeLayout = "2006-01-02 15:04"

type exportRepository interface {
	ExportRows(ctx context.Context, t models.RequestType, from, to time.Time) ([]models.RequestWithDetail, error)
}

// ExportFile is a rendered export ready to be served as an attachment.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
}

// ExportService builds monthly detail spreadsheets.
type ExportService struct {
	repo      exportRepository
	exporters map[string]export.Exporter
	location  *time.Location
	logger    *zap.Logger
}

// NewExportService constructs an ExportService. Dates are bucketed in loc.
func NewExportService(repo exportRepository, loc *time.Location, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ExportService{
		repo: repo,
		exporters: map[string]export.Exporter{
			ExportFormatXLSX: export.NewXLSXExporter(),
			ExportFormatCSV:  export.NewCSVExporter(),
		},
		location: loc,
		logger:   logger,
	}
}

// MonthlyDetails renders every request of type t created during the given month.
func (s *ExportService) MonthlyDetails(ctx context.Context, t models.RequestType, year, month int, format string) (*ExportFile, error) {
	problems := map[string]string{}
	if !t.Valid() {
		problems["type"] = "must be entrepreneur or pet"
	}
	if year < 2000 || year > 2100 {
		problems["year"] = "must be between 2000 and 2100"
	}
	if month < 1 || month > 12 {
		problems["month"] = "must be between 1 and 12"
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatXLSX
	}
	exporter, ok := s.exporters[format]
	if !ok {
		problems["format"] = "must be xlsx or csv"
	}
	if len(problems) > 0 {
		return nil, appErrors.Validation("invalid export request", problems)
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.location)
	to := from.AddDate(0, 1, 0)
	rows, err := s.repo.ExportRows(ctx, t, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export rows")
	}

	data, err := exporter.Render(s.dataset(t, rows))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Info("monthly export rendered",
		zap.String("type", string(t)),
		zap.Int("year", year),
		zap.Int("month", month),
		zap.String("format", format),
		zap.Int("rows", len(rows)),
	)
	return &ExportFile{
		Filename:    fmt.Sprintf("detalles_%s_%04d-%02d.%s", t, year, month, exporter.Extension()),
		ContentType: exporter.ContentType(),
		Data:        data,
		Rows:        len(rows),
	}, nil
}

func (s *ExportService) dataset(t models.RequestType, rows []models.RequestWithDetail) export.Dataset {
	var template models.Detail = &models.PetDetail{}
	sheet := "Mascotas"
	if t == models.RequestTypeEntrepreneur {
		template = &models.EntrepreneurDetail{}
		sheet = "Emprendedores"
	}

	headers := []string{"ID", "Estado", "Origen", "Correo", "Código de verificación", "Creado", "Aprobado"}
	for _, f := range template.Fields() {
		headers = append(headers, f.Label)
	}
	headers = append(headers, "Datos adicionales")

	out := export.Dataset{Sheet: sheet, Headers: headers, Rows: make([][]string, 0, len(rows))}
	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.ID, 10),
			string(row.State),
			string(row.Origin),
			row.ContactEmail,
			row.VerificationCode,
			row.CreatedAt.In(s.location).Format(exportTimeLayout),
			"",
		}
		if row.ApprovedAt != nil {
			record[6] = row.ApprovedAt.In(s.location).Format(exportTimeLayout)
		}
		var extra models.Attributes
		if row.Detail != nil {
			for _, f := range row.Detail.Fields() {
				record = append(record, f.Value)
			}
			extra = detailExtra(row.Detail)
		} else {
			record = append(record, make([]string, len(headers)-len(record)-1)...)
		}
		record = append(record, formatExtra(extra))
		out.Rows = append(out.Rows, record)
	}
	return out
}

func detailExtra(d models.Detail) models.Attributes {
	switch v := d.(type) {
	case *models.EntrepreneurDetail:
		return v.Extra
	case *models.PetDetail:
		return v.Extra
	}
	return nil
}

func formatExtra(extra models.Attributes) string {
	if len(extra) == 0 {
		return ""
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+extra[k])
	}
	return strings.Join(parts, "; ")
}
