package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/pqr-service/internal/domain"
)

// TicketFilter captures listing and aggregation parameters.
type TicketFilter struct {
	AuthorID        *int64
	AssignedAgentID *int64
	Statuses        []domain.TicketStatus
	SearchTerm      *string
	Limit           int
	Offset          int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetByIDForUpdate also locks the ticket row until the enclosing
	// transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountByStatus(ctx context.Context, filter TicketFilter) (map[domain.TicketStatus]int64, error)
	CountByType(ctx context.Context, filter TicketFilter) ([]domain.LabelCount, error)
	CountByAgent(ctx context.Context, filter TicketFilter) ([]domain.LabelCount, error)
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `
        t.id::text, t.ticket_key, t.author_user_id, t.type, t.subject, t.description,
        t.product_name, t.batch_number, t.expiration_date, t.quantity, t.devolution_type,
        t.invoice_number, t.ideal_temperature_range, t.client_name, t.client_email,
        t.status, t.priority, t.assigned_agent_id, t.created_at, t.updated_at,
        author.name, agent.name
        FROM tickets t
        LEFT JOIN users author ON author.id = t.author_user_id
        LEFT JOIN users agent ON agent.id = t.assigned_agent_id`

// Create inserts the ticket. A ticket key collision yields
// ErrDuplicateTicketKey without aborting an enclosing transaction.
func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, ticket_key, author_user_id, type, subject, description,
            product_name, batch_number, expiration_date, quantity, devolution_type,
            invoice_number, ideal_temperature_range, client_name, client_email,
            status, priority, assigned_agent_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$19)
        ON CONFLICT (ticket_key) DO NOTHING
        RETURNING created_at, updated_at`
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx, query,
		ticket.ID,
		ticket.TicketKey,
		ticket.AuthorUserID,
		ticket.Type,
		ticket.Subject,
		ticket.Description,
		ticket.ProductName,
		ticket.BatchNumber,
		ticket.ExpirationDate,
		ticket.Quantity,
		ticket.DevolutionType,
		ticket.InvoiceNumber,
		ticket.IdealTemperatureRange,
		ticket.ClientName,
		ticket.ClientEmail,
		ticket.Status,
		ticket.Priority,
		ticket.AssignedAgentID,
		ticket.CreatedAt,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
	if err == pgx.ErrNoRows {
		return ErrDuplicateTicketKey
	}
	return err
}

// Update persists the mutable fields. UpdatedAt is written as given.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET subject=$1, description=$2, status=$3, priority=$4,
            assigned_agent_id=$5, updated_at=$6
        WHERE id=$7`
	cmd, err := r.db.Exec(ctx, query,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.AssignedAgentID,
		ticket.UpdatedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.getByID(ctx, id, "")
}

func (r *ticketRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.getByID(ctx, id, " FOR UPDATE OF t")
}

func (r *ticketRepository) getByID(ctx context.Context, id, lock string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, pgx.ErrNoRows
	}
	ticket, err := scanTicket(r.db.QueryRow(ctx, `SELECT `+ticketColumns+` WHERE t.id=$1`+lock, id))
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	where, args := buildTicketWhere(filter)
	query := `SELECT ` + ticketColumns + where + ` ORDER BY t.created_at DESC, t.ticket_key DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) CountByStatus(ctx context.Context, filter TicketFilter) (map[domain.TicketStatus]int64, error) {
	where, args := buildTicketWhere(filter)
	rows, err := r.db.Query(ctx, `SELECT t.status, COUNT(*) FROM tickets t`+where+` GROUP BY t.status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[domain.TicketStatus]int64{}
	for rows.Next() {
		var status domain.TicketStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *ticketRepository) CountByType(ctx context.Context, filter TicketFilter) ([]domain.LabelCount, error) {
	where, args := buildTicketWhere(filter)
	return r.labelCounts(ctx, `SELECT t.type, COUNT(*) FROM tickets t`+where+
		` GROUP BY t.type ORDER BY t.type`, args)
}

// CountByAgent groups assigned tickets by the agent's display name.
func (r *ticketRepository) CountByAgent(ctx context.Context, filter TicketFilter) ([]domain.LabelCount, error) {
	where, args := buildTicketWhere(filter)
	return r.labelCounts(ctx, `SELECT agent.name, COUNT(*) FROM tickets t
        JOIN users agent ON agent.id = t.assigned_agent_id`+where+
		` GROUP BY agent.name ORDER BY agent.name`, args)
}

func (r *ticketRepository) labelCounts(ctx context.Context, query string, args []any) ([]domain.LabelCount, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.LabelCount{}
	for rows.Next() {
		var row domain.LabelCount
		if err := rows.Scan(&row.Label, &row.Count); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func buildTicketWhere(filter TicketFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.AuthorID != nil {
		args = append(args, *filter.AuthorID)
		clauses = append(clauses, fmt.Sprintf("t.author_user_id=$%d", len(args)))
	}
	if filter.AssignedAgentID != nil {
		args = append(args, *filter.AssignedAgentID)
		clauses = append(clauses, fmt.Sprintf("t.assigned_agent_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		args = append(args, "%"+escapeLike(strings.TrimSpace(*filter.SearchTerm))+"%")
		p := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(`(t.ticket_key ILIKE %[1]s OR t.client_name ILIKE %[1]s
            OR t.client_email ILIKE %[1]s OR t.product_name ILIKE %[1]s
            OR t.batch_number ILIKE %[1]s OR t.subject ILIKE %[1]s)`, p))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketKey,
		&ticket.AuthorUserID,
		&ticket.Type,
		&ticket.Subject,
		&ticket.Description,
		&ticket.ProductName,
		&ticket.BatchNumber,
		&ticket.ExpirationDate,
		&ticket.Quantity,
		&ticket.DevolutionType,
		&ticket.InvoiceNumber,
		&ticket.IdealTemperatureRange,
		&ticket.ClientName,
		&ticket.ClientEmail,
		&ticket.Status,
		&ticket.Priority,
		&ticket.AssignedAgentID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.AuthorName,
		&ticket.AssignedAgentName,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
