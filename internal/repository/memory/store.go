// Package memory implements repository.Store in process memory. It backs the
// service when no Postgres DSN is configured and in tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/pqr-service/internal/domain"
	"github.com/spec-kit/pqr-service/internal/repository"
)

type state struct {
	users       map[int64]domain.User
	tickets     map[string]domain.Ticket
	comments    []domain.Comment
	attachments []domain.Attachment
	history     []domain.TicketHistory

	nextUserID       int64
	nextCommentID    int64
	nextAttachmentID int64
	nextHistoryID    int64
}

func newState() *state {
	return &state{
		users:   map[int64]domain.User{},
		tickets: map[string]domain.Ticket{},
	}
}

func (s *state) clone() *state {
	c := *s
	c.users = make(map[int64]domain.User, len(s.users))
	for k, v := range s.users {
		c.users[k] = v
	}
	c.tickets = make(map[string]domain.Ticket, len(s.tickets))
	for k, v := range s.tickets {
		c.tickets[k] = v
	}
	c.comments = append([]domain.Comment(nil), s.comments...)
	c.attachments = append([]domain.Attachment(nil), s.attachments...)
	c.history = append([]domain.TicketHistory(nil), s.history...)
	return &c
}

// Store is a mutex-guarded in-memory repository.Store.
type Store struct {
	mu   *sync.Mutex
	data **state
	inTx bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	st := newState()
	return &Store{mu: &sync.Mutex{}, data: &st}
}

// lock is a no-op inside WithinTx, which already holds the mutex.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) st() *state { return *s.data }

func (s *Store) Users() repository.UserRepository             { return userRepo{s} }
func (s *Store) Tickets() repository.TicketRepository         { return ticketRepo{s} }
func (s *Store) Comments() repository.CommentRepository       { return commentRepo{s} }
func (s *Store) Attachments() repository.AttachmentRepository { return attachmentRepo{s} }
func (s *Store) History() repository.TicketHistoryRepository  { return historyRepo{s} }

// WithinTx serializes fn against the store and restores the previous state
// when fn fails.
func (s *Store) WithinTx(_ context.Context, fn func(repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st().clone()
	if err := fn(&Store{mu: s.mu, data: s.data, inTx: true}); err != nil {
		*s.data = snapshot
		return err
	}
	return nil
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	defer r.s.lock()()
	st := r.s.st()
	for _, existing := range st.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	st.nextUserID++
	user.ID = st.nextUserID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	st.users[user.ID] = *user
	return nil
}

func (r userRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	defer r.s.lock()()
	user, ok := r.s.st().users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	defer r.s.lock()()
	for _, user := range r.s.st().users {
		if strings.EqualFold(user.Email, email) {
			return &user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r userRepo) List(_ context.Context) ([]domain.User, error) {
	defer r.s.lock()()
	result := make([]domain.User, 0, len(r.s.st().users))
	for _, user := range r.s.st().users {
		result = append(result, user)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r userRepo) ListAgents(_ context.Context) ([]domain.Agent, error) {
	defer r.s.lock()()
	st := r.s.st()
	result := []domain.Agent{}
	for _, user := range st.users {
		if !user.Role.IsStaff() {
			continue
		}
		agent := domain.Agent{User: user}
		for _, ticket := range st.tickets {
			if ticket.AssignedAgentID != nil && *ticket.AssignedAgentID == user.ID {
				agent.AssignedTickets++
			}
		}
		result = append(result, agent)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r userRepo) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	defer r.s.lock()()
	st := r.s.st()
	user, ok := st.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordHash = passwordHash
	st.users[id] = user
	return nil
}

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	defer r.s.lock()()
	st := r.s.st()
	for _, existing := range st.tickets {
		if existing.TicketKey == ticket.TicketKey {
			return repository.ErrDuplicateTicketKey
		}
	}
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	ticket.UpdatedAt = ticket.CreatedAt
	stored := *ticket
	stored.AuthorName, stored.AssignedAgentName = nil, nil
	st.tickets[ticket.ID] = stored
	return nil
}

func (r ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	defer r.s.lock()()
	st := r.s.st()
	stored, ok := st.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.Subject = ticket.Subject
	stored.Description = ticket.Description
	stored.Status = ticket.Status
	stored.Priority = ticket.Priority
	stored.AssignedAgentID = ticket.AssignedAgentID
	stored.UpdatedAt = ticket.UpdatedAt
	st.tickets[ticket.ID] = stored
	return nil
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	defer r.s.lock()()
	st := r.s.st()
	ticket, ok := st.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	st.resolveNames(&ticket)
	return &ticket, nil
}

// GetByIDForUpdate needs no row lock; transactions already hold the store
// mutex.
func (r ticketRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r ticketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	defer r.s.lock()()
	st := r.s.st()
	result := st.matching(filter)
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].TicketKey > result[j].TicketKey
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []domain.Ticket{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	for i := range result {
		st.resolveNames(&result[i])
	}
	return result, nil
}

func (r ticketRepo) CountByStatus(_ context.Context, filter repository.TicketFilter) (map[domain.TicketStatus]int64, error) {
	defer r.s.lock()()
	counts := map[domain.TicketStatus]int64{}
	for _, ticket := range r.s.st().matching(filter) {
		counts[ticket.Status]++
	}
	return counts, nil
}

func (r ticketRepo) CountByType(_ context.Context, filter repository.TicketFilter) ([]domain.LabelCount, error) {
	defer r.s.lock()()
	counts := map[string]int64{}
	for _, ticket := range r.s.st().matching(filter) {
		counts[string(ticket.Type)]++
	}
	return sortedCounts(counts), nil
}

func (r ticketRepo) CountByAgent(_ context.Context, filter repository.TicketFilter) ([]domain.LabelCount, error) {
	defer r.s.lock()()
	st := r.s.st()
	counts := map[string]int64{}
	for _, ticket := range st.matching(filter) {
		if ticket.AssignedAgentID == nil {
			continue
		}
		agent, ok := st.users[*ticket.AssignedAgentID]
		if !ok {
			continue
		}
		counts[agent.Name]++
	}
	return sortedCounts(counts), nil
}

func (st *state) matching(filter repository.TicketFilter) []domain.Ticket {
	term := ""
	if filter.SearchTerm != nil {
		term = strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
	}
	result := []domain.Ticket{}
	for _, ticket := range st.tickets {
		if filter.AuthorID != nil && ticket.AuthorUserID != *filter.AuthorID {
			continue
		}
		if filter.AssignedAgentID != nil && (ticket.AssignedAgentID == nil || *ticket.AssignedAgentID != *filter.AssignedAgentID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
			continue
		}
		if term != "" && !matchesSearch(ticket, term) {
			continue
		}
		result = append(result, ticket)
	}
	return result
}

func (st *state) resolveNames(ticket *domain.Ticket) {
	ticket.AuthorName, ticket.AssignedAgentName = nil, nil
	if author, ok := st.users[ticket.AuthorUserID]; ok {
		name := author.Name
		ticket.AuthorName = &name
	}
	if ticket.AssignedAgentID != nil {
		if agent, ok := st.users[*ticket.AssignedAgentID]; ok {
			name := agent.Name
			ticket.AssignedAgentName = &name
		}
	}
}

func matchesSearch(ticket domain.Ticket, term string) bool {
	for _, field := range []string{
		ticket.TicketKey,
		ticket.ClientName,
		ticket.ClientEmail,
		ticket.ProductName,
		ticket.BatchNumber,
		ticket.Subject,
	} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func sortedCounts(counts map[string]int64) []domain.LabelCount {
	result := make([]domain.LabelCount, 0, len(counts))
	for label, count := range counts {
		result = append(result, domain.LabelCount{Label: label, Count: count})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Label < result[j].Label })
	return result
}

type commentRepo struct{ s *Store }

func (r commentRepo) Create(_ context.Context, comment *domain.Comment) error {
	defer r.s.lock()()
	st := r.s.st()
	if _, ok := st.tickets[comment.TicketID]; !ok {
		return pgx.ErrNoRows
	}
	st.nextCommentID++
	comment.ID = st.nextCommentID
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	st.comments = append(st.comments, *comment)
	return nil
}

func (r commentRepo) ListByTicket(_ context.Context, ticketID string, publicOnly bool) ([]domain.Comment, error) {
	defer r.s.lock()()
	result := []domain.Comment{}
	for _, c := range r.s.st().comments {
		if c.TicketID != ticketID || (publicOnly && c.IsInternal) {
			continue
		}
		result = append(result, c)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

type attachmentRepo struct{ s *Store }

func (r attachmentRepo) Create(_ context.Context, attachment *domain.Attachment) error {
	defer r.s.lock()()
	st := r.s.st()
	if _, ok := st.tickets[attachment.TicketID]; !ok {
		return pgx.ErrNoRows
	}
	st.nextAttachmentID++
	attachment.ID = st.nextAttachmentID
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = time.Now().UTC()
	}
	st.attachments = append(st.attachments, *attachment)
	return nil
}

func (r attachmentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Attachment, error) {
	defer r.s.lock()()
	result := []domain.Attachment{}
	for _, a := range r.s.st().attachments {
		if a.TicketID == ticketID {
			result = append(result, a)
		}
	}
	return result, nil
}

type historyRepo struct{ s *Store }

func (r historyRepo) Create(_ context.Context, entry *domain.TicketHistory) error {
	defer r.s.lock()()
	st := r.s.st()
	st.nextHistoryID++
	entry.ID = st.nextHistoryID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	st.history = append(st.history, *entry)
	return nil
}

func (r historyRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	defer r.s.lock()()
	result := []domain.TicketHistory{}
	for _, h := range r.s.st().history {
		if h.TicketID == ticketID {
			result = append(result, h)
		}
	}
	return result, nil
}
