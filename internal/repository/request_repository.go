package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/carnet-api/internal/models"
)

var (
	// ErrDuplicateVerificationCode signals a collision on the unique verification code.
	ErrDuplicateVerificationCode = errors.New("verification code already exists")
	// ErrDetailMismatch is returned when the detail variant does not match the request type.
	ErrDetailMismatch = errors.New("detail variant does not match request type")
	// ErrDetailMissing means a request row exists without its detail row.
	ErrDetailMissing = errors.New("request detail missing")
)

const requestColumns = `id, type, state, origin, contact_email, verification_code, created_at, approved_at`

const entrepreneurDetailColumns = `id_detalle, request_id, documento_titular, razon_social, nombre_comercial, registro_fiscal,
       descripcion_actividad, tipo_persona, direccion_fisica, telefono_contacto, fecha_vencimiento, rubro, extra`

const petDetailColumns = `id_detalle, request_id, nombre_mascota, especie, raza, nombre_tutor, edad_tutor, telefono_tutor,
       zona_residente, extra`

// RequestRepository persists requests together with their type-specific detail rows.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts the request and its detail in a single transaction. On success the
// generated id and creation time are written back into req.
func (r *RequestRepository) Create(ctx context.Context, req *models.Request, detail models.Detail) (err error) {
	if req == nil || detail == nil || detail.Kind() != req.Type {
		return ErrDetailMismatch
	}
	if req.State == "" {
		req.State = models.RequestStatePending
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create request: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertRequest = `INSERT INTO requests (type, state, origin, contact_email, verification_code)
VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	if err = tx.QueryRowxContext(ctx, insertRequest, req.Type, req.State, req.Origin, req.ContactEmail, req.VerificationCode).
		Scan(&req.ID, &req.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateVerificationCode
		}
		return fmt.Errorf("insert request: %w", err)
	}

	detail.SetRequestID(req.ID)
	if err = insertDetail(ctx, tx, detail); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create request: %w", err)
	}
	return nil
}

func insertDetail(ctx context.Context, tx *sqlx.Tx, detail models.Detail) error {
	switch d := detail.(type) {
	case *models.EntrepreneurDetail:
		const query = `INSERT INTO entrepreneur_details (request_id, documento_titular, razon_social, nombre_comercial, registro_fiscal,
       descripcion_actividad, tipo_persona, direccion_fisica, telefono_contacto, fecha_vencimiento, rubro, extra)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id_detalle`
		if err := tx.QueryRowxContext(ctx, query, d.RequestID, d.HolderDocument, d.LegalName, d.TradeName, d.TaxRegistry,
			d.ActivityDescription, d.PersonType, d.Address, d.Phone, d.ExpirationDate, d.Sector, d.Extra).Scan(&d.ID); err != nil {
			return fmt.Errorf("insert entrepreneur detail: %w", err)
		}
	case *models.PetDetail:
		const query = `INSERT INTO pet_details (request_id, nombre_mascota, especie, raza, nombre_tutor, edad_tutor, telefono_tutor,
       zona_residente, extra)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id_detalle`
		if err := tx.QueryRowxContext(ctx, query, d.RequestID, d.PetName, d.Species, d.Breed, d.GuardianName, d.GuardianAge,
			d.GuardianPhone, d.Zone, d.Extra).Scan(&d.ID); err != nil {
			return fmt.Errorf("insert pet detail: %w", err)
		}
	default:
		return fmt.Errorf("insert detail %T: %w", detail, ErrDetailMismatch)
	}
	return nil
}

// GetByID loads a request and its detail. sql.ErrNoRows is returned untouched when absent.
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*models.RequestWithDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM requests WHERE id = $1`, requestColumns)
	var req models.Request
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get request: %w", err)
	}

	detail, err := loadDetail(ctx, r.db, req.Type, req.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("request %d: %w", req.ID, ErrDetailMissing)
		}
		return nil, err
	}
	return &models.RequestWithDetail{Request: req, Detail: detail}, nil
}

func loadDetail(ctx context.Context, q sqlx.QueryerContext, t models.RequestType, requestID int64) (models.Detail, error) {
	switch t {
	case models.RequestTypeEntrepreneur:
		var d models.EntrepreneurDetail
		query := fmt.Sprintf(`SELECT %s FROM entrepreneur_details WHERE request_id = $1`, entrepreneurDetailColumns)
		if err := sqlx.GetContext(ctx, q, &d, query, requestID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
			return nil, fmt.Errorf("get entrepreneur detail: %w", err)
		}
		return &d, nil
	case models.RequestTypePet:
		var d models.PetDetail
		query := fmt.Sprintf(`SELECT %s FROM pet_details WHERE request_id = $1`, petDetailColumns)
		if err := sqlx.GetContext(ctx, q, &d, query, requestID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
			return nil, fmt.Errorf("get pet detail: %w", err)
		}
		return &d, nil
	default:
		return nil, fmt.Errorf("load detail for type %q: %w", t, ErrDetailMismatch)
	}
}

// List returns one page of requests plus the total matching the same predicate.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	filter.Normalize()
	where, args := buildRequestWhere(filter)

	query := fmt.Sprintf(`SELECT %s FROM requests%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		requestColumns, where, filter.Limit, filter.Offset())
	requests := make([]models.Request, 0)
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}
	return requests, total, nil
}

func buildRequestWhere(filter models.RequestFilter) (string, []interface{}) {
	conditions := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)

	if filter.State != "" {
		args = append(args, filter.State)
		conditions = append(conditions, fmt.Sprintf("state = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Origin != "" {
		args = append(args, filter.Origin)
		conditions = append(conditions, fmt.Sprintf("origin = $%d", len(args)))
	}
	if email := strings.TrimSpace(filter.ContactEmail); email != "" {
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(email))+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(contact_email) LIKE $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// UpdateStateParams describes a compare-and-swap state change.
type UpdateStateParams struct {
	ID         int64
	From       models.RequestState
	To         models.RequestState
	ApprovedAt *time.Time
}

// UpdateState moves a request from params.From to params.To. When the row is missing or no
// longer in params.From, sql.ErrNoRows is returned and nothing changes.
func (r *RequestRepository) UpdateState(ctx context.Context, params UpdateStateParams) (*models.Request, error) {
	query := fmt.Sprintf(`UPDATE requests SET state = $1, approved_at = $2 WHERE id = $3 AND state = $4 RETURNING %s`, requestColumns)
	var req models.Request
	if err := r.db.GetContext(ctx, &req, query, params.To, params.ApprovedAt, params.ID, params.From); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update request state: %w", err)
	}
	return &req, nil
}

// Delete removes the delivery history, the detail and the request in one transaction.
func (r *RequestRepository) Delete(ctx context.Context, id int64) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete request: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var reqType models.RequestType
	if err = tx.GetContext(ctx, &reqType, `SELECT type FROM requests WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("lock request: %w", err)
	}

	table, err := detailTable(reqType)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM delivery_attempts WHERE request_id = $1`, id); err != nil {
		return fmt.Errorf("delete delivery attempts: %w", err)
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE request_id = $1`, table), id); err != nil {
		return fmt.Errorf("delete request detail: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete request: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete request: %w", err)
	}
	return nil
}

func detailTable(t models.RequestType) (string, error) {
	switch t {
	case models.RequestTypeEntrepreneur:
		return "entrepreneur_details", nil
	case models.RequestTypePet:
		return "pet_details", nil
	default:
		return "", fmt.Errorf("detail table for type %q: %w", t, ErrDetailMismatch)
	}
}

// Stats counts requests of one type by state plus a variant-specific breakdown
// (person type for entrepreneurs, species for pets).
func (r *RequestRepository) Stats(ctx context.Context, t models.RequestType) (*models.TypeStats, error) {
	table, err := detailTable(t)
	if err != nil {
		return nil, err
	}

	var byState []models.StateCount
	if err := r.db.SelectContext(ctx, &byState, `SELECT state AS key, COUNT(*) AS count FROM requests WHERE type = $1 GROUP BY state`, t); err != nil {
		return nil, fmt.Errorf("count requests by state: %w", err)
	}

	column := "tipo_persona"
	if t == models.RequestTypePet {
		column = "especie"
	}
	var breakdown []models.StateCount
	breakdownQuery := fmt.Sprintf(`SELECT d.%[1]s AS key, COUNT(*) AS count FROM %[2]s d GROUP BY d.%[1]s ORDER BY count DESC`, column, table)
	if err := r.db.SelectContext(ctx, &breakdown, breakdownQuery); err != nil {
		return nil, fmt.Errorf("count %s breakdown: %w", t, err)
	}

	stats := &models.TypeStats{
		Type:      t,
		ByState:   map[string]int{},
		Breakdown: map[string]int{},
	}
	for _, state := range []models.RequestState{models.RequestStatePending, models.RequestStateApproved, models.RequestStateRejected} {
		stats.ByState[string(state)] = 0
	}
	for _, row := range byState {
		stats.ByState[row.Key] = row.Count
		stats.Total += row.Count
	}
	for _, row := range breakdown {
		stats.Breakdown[row.Key] = row.Count
	}
	return stats, nil
}

// AvailableMonths lists the (year, month) pairs holding requests of a type, newest first.
func (r *RequestRepository) AvailableMonths(ctx context.Context, t models.RequestType, loc *time.Location) ([]models.MonthBucket, error) {
	if loc == nil {
		loc = time.UTC
	}
	const query = `SELECT DISTINCT
       EXTRACT(YEAR FROM created_at AT TIME ZONE $2)::int AS year,
       EXTRACT(MONTH FROM created_at AT TIME ZONE $2)::int AS month
FROM requests WHERE type = $1
ORDER BY year DESC, month DESC`
	months := make([]models.MonthBucket, 0)
	if err := r.db.SelectContext(ctx, &months, query, t, loc.String()); err != nil {
		return nil, fmt.Errorf("list request months: %w", err)
	}
	return months, nil
}

type entrepreneurExportRow struct {
	models.Request
	models.EntrepreneurDetail
}

type petExportRow struct {
	models.Request
	models.PetDetail
}

// ExportRows returns every request of a type created in [from, to) with its detail,
// ordered by creation time, request id and detail id.
func (r *RequestRepository) ExportRows(ctx context.Context, t models.RequestType, from, to time.Time) ([]models.RequestWithDetail, error) {
	const base = `FROM requests r JOIN %s d ON d.request_id = r.id
WHERE r.type = $1 AND r.created_at >= $2 AND r.created_at < $3
ORDER BY r.created_at, r.id, d.id_detalle`
	headerColumns := `r.id, r.type, r.state, r.origin, r.contact_email, r.verification_code, r.created_at, r.approved_at`

	switch t {
	case models.RequestTypeEntrepreneur:
		var rows []entrepreneurExportRow
		query := fmt.Sprintf("SELECT %s, %s "+base, headerColumns, prefixColumns("d", entrepreneurDetailColumns), "entrepreneur_details")
		if err := r.db.SelectContext(ctx, &rows, query, t, from, to); err != nil {
			return nil, fmt.Errorf("export entrepreneur rows: %w", err)
		}
		result := make([]models.RequestWithDetail, 0, len(rows))
		for i := range rows {
			detail := rows[i].EntrepreneurDetail
			result = append(result, models.RequestWithDetail{Request: rows[i].Request, Detail: &detail})
		}
		return result, nil
	case models.RequestTypePet:
		var rows []petExportRow
		query := fmt.Sprintf("SELECT %s, %s "+base, headerColumns, prefixColumns("d", petDetailColumns), "pet_details")
		if err := r.db.SelectContext(ctx, &rows, query, t, from, to); err != nil {
			return nil, fmt.Errorf("export pet rows: %w", err)
		}
		result := make([]models.RequestWithDetail, 0, len(rows))
		for i := range rows {
			detail := rows[i].PetDetail
			result = append(result, models.RequestWithDetail{Request: rows[i].Request, Detail: &detail})
		}
		return result, nil
	default:
		return nil, fmt.Errorf("export rows for type %q: %w", t, ErrDetailMismatch)
	}
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
