package racha

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/racha/internal/model"
	"github.com/hitoshi/racha/internal/repository"
)

// memState はテスト用のインメモリ永続化状態。値で保持してトランザクションの巻き戻しを複製で表現する。
type memState struct {
	events       map[string]model.Event
	participants map[string]model.Participant
	expenses     map[string]model.Expense
	shares       map[string][]model.ExpenseShare
	payments     map[string]model.Payment
	paidKeys     map[string]string
}

func newMemState() *memState {
	return &memState{
		events:       make(map[string]model.Event),
		participants: make(map[string]model.Participant),
		expenses:     make(map[string]model.Expense),
		shares:       make(map[string][]model.ExpenseShare),
		payments:     make(map[string]model.Payment),
		paidKeys:     make(map[string]string),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.participants {
		c.participants[k] = v
	}
	for k, v := range s.expenses {
		c.expenses[k] = v
	}
	for k, v := range s.shares {
		c.shares[k] = append([]model.ExpenseShare(nil), v...)
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.paidKeys {
		c.paidKeys[k] = v
	}
	return c
}

// memUoW は repository.UnitOfWork のインメモリ実装。
// WithinTx はfnがエラーを返すと状態を開始前に戻す。
type memUoW struct {
	mu    sync.Mutex
	state *memState

	txOptions        []*sql.TxOptions
	replaceSharesErr error
}

func newMemUoW() *memUoW {
	return &memUoW{state: newMemState()}
}

func (u *memUoW) Events() repository.EventRepository             { return &memEventRepo{u} }
func (u *memUoW) Participants() repository.ParticipantRepository { return &memParticipantRepo{u} }
func (u *memUoW) Expenses() repository.ExpenseRepository         { return &memExpenseRepo{u} }
func (u *memUoW) Payments() repository.PaymentRepository         { return &memPaymentRepo{u} }

func (u *memUoW) WithinTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx repository.Store) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.txOptions = append(u.txOptions, opts)
	snapshot := u.state.clone()
	if err := fn(ctx, u); err != nil {
		u.state = snapshot
		return err
	}
	return nil
}

func (u *memUoW) lastTxOptions() *sql.TxOptions {
	if len(u.txOptions) == 0 {
		return nil
	}
	return u.txOptions[len(u.txOptions)-1]
}

type memEventRepo struct{ u *memUoW }

func (r *memEventRepo) FindByID(_ context.Context, id string) (*model.Event, error) {
	e, ok := r.u.state.events[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *memEventRepo) LockByID(ctx context.Context, id string) (*model.Event, error) {
	return r.FindByID(ctx, id)
}

func (r *memEventRepo) Create(_ context.Context, e *model.Event) error {
	if _, ok := r.u.state.events[e.ID]; ok {
		return repository.ErrUniqueViolation
	}
	r.u.state.events[e.ID] = *e
	return nil
}

func (r *memEventRepo) CloseSettlement(_ context.Context, id string, closedAt time.Time) error {
	e, ok := r.u.state.events[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.SettlementClosedAt = &closedAt
	r.u.state.events[id] = e
	return nil
}

func (r *memEventRepo) Delete(_ context.Context, id string) error {
	st := r.u.state
	delete(st.events, id)
	for pid, p := range st.participants {
		if p.EventID == id {
			delete(st.participants, pid)
		}
	}
	for eid, e := range st.expenses {
		if e.EventID == id {
			delete(st.expenses, eid)
			delete(st.shares, eid)
		}
	}
	for pid, p := range st.payments {
		if p.EventID == id {
			delete(st.payments, pid)
		}
	}
	return nil
}

type memParticipantRepo struct{ u *memUoW }

func (r *memParticipantRepo) FindByID(_ context.Context, id string) (*model.Participant, error) {
	p, ok := r.u.state.participants[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memParticipantRepo) FindActiveByEventAndUser(_ context.Context, eventID, userID string) (*model.Participant, error) {
	for _, p := range r.u.state.participants {
		if p.EventID == eventID && p.IsActive && p.UserID != nil && *p.UserID == userID {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memParticipantRepo) list(eventID string, activeOnly bool) []*model.Participant {
	var ps []*model.Participant
	for _, p := range r.u.state.participants {
		if p.EventID != eventID || (activeOnly && !p.IsActive) {
			continue
		}
		found := p
		ps = append(ps, &found)
	}
	model.SortByCreation(ps)
	return ps
}

func (r *memParticipantRepo) ListActiveByEvent(_ context.Context, eventID string) ([]*model.Participant, error) {
	return r.list(eventID, true), nil
}

func (r *memParticipantRepo) ListByEvent(_ context.Context, eventID string) ([]*model.Participant, error) {
	return r.list(eventID, false), nil
}

func (r *memParticipantRepo) Create(_ context.Context, p *model.Participant) error {
	if p.UserID != nil {
		for _, existing := range r.u.state.participants {
			if existing.EventID == p.EventID && existing.IsActive && existing.UserID != nil && *existing.UserID == *p.UserID {
				return repository.ErrUniqueViolation
			}
		}
	}
	r.u.state.participants[p.ID] = *p
	return nil
}

func (r *memParticipantRepo) Deactivate(_ context.Context, id string) error {
	p, ok := r.u.state.participants[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.IsActive = false
	r.u.state.participants[id] = p
	return nil
}

func (r *memParticipantRepo) Delete(_ context.Context, id string) error {
	for _, e := range r.u.state.expenses {
		if e.PayerID == id {
			return errForeignKey
		}
	}
	for _, shares := range r.u.state.shares {
		for _, sh := range shares {
			if sh.ParticipantID == id {
				return errForeignKey
			}
		}
	}
	delete(r.u.state.participants, id)
	return nil
}

func (r *memParticipantRepo) HasPayerOrPaymentHistory(_ context.Context, id string) (bool, error) {
	for _, e := range r.u.state.expenses {
		if e.PayerID == id {
			return true, nil
		}
	}
	for _, p := range r.u.state.payments {
		if p.ParticipantID == id {
			return true, nil
		}
	}
	return false, nil
}

type memExpenseRepo struct{ u *memUoW }

func (r *memExpenseRepo) FindByID(_ context.Context, id string) (*model.Expense, error) {
	e, ok := r.u.state.expenses[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *memExpenseRepo) Create(_ context.Context, e *model.Expense, shares []model.ExpenseShare) error {
	r.u.state.expenses[e.ID] = *e
	r.u.state.shares[e.ID] = append([]model.ExpenseShare(nil), shares...)
	return nil
}

func (r *memExpenseRepo) Delete(_ context.Context, id string) error {
	delete(r.u.state.expenses, id)
	delete(r.u.state.shares, id)
	return nil
}

func (r *memExpenseRepo) ListByEvent(_ context.Context, eventID string) ([]*model.Expense, error) {
	var es []*model.Expense
	for _, e := range r.u.state.expenses {
		if e.EventID == eventID {
			found := e
			es = append(es, &found)
		}
	}
	sort.Slice(es, func(i, j int) bool {
		if !es[i].CreatedAt.Equal(es[j].CreatedAt) {
			return es[i].CreatedAt.Before(es[j].CreatedAt)
		}
		return es[i].ID < es[j].ID
	})
	return es, nil
}

func (r *memExpenseRepo) ListSharesByEvent(ctx context.Context, eventID string) ([]model.ExpenseShare, error) {
	es, _ := r.ListByEvent(ctx, eventID)
	var shares []model.ExpenseShare
	for _, e := range es {
		shares = append(shares, r.u.state.shares[e.ID]...)
	}
	return shares, nil
}

func (r *memExpenseRepo) ListSharesByExpenses(_ context.Context, expenseIDs []string) ([]model.ExpenseShare, error) {
	var shares []model.ExpenseShare
	for _, id := range expenseIDs {
		shares = append(shares, r.u.state.shares[id]...)
	}
	return shares, nil
}

func (r *memExpenseRepo) ListExpenseIDsByShareholder(ctx context.Context, participantID string) ([]string, error) {
	var ids []string
	for _, e := range r.allExpenses() {
		for _, sh := range r.u.state.shares[e.ID] {
			if sh.ParticipantID == participantID {
				ids = append(ids, e.ID)
				break
			}
		}
	}
	return ids, nil
}

func (r *memExpenseRepo) allExpenses() []*model.Expense {
	var es []*model.Expense
	for _, e := range r.u.state.expenses {
		found := e
		es = append(es, &found)
	}
	sort.Slice(es, func(i, j int) bool {
		if !es[i].CreatedAt.Equal(es[j].CreatedAt) {
			return es[i].CreatedAt.Before(es[j].CreatedAt)
		}
		return es[i].ID < es[j].ID
	})
	return es
}

func (r *memExpenseRepo) ReplaceShares(_ context.Context, expenseID string, shares []model.ExpenseShare) error {
	if r.u.replaceSharesErr != nil {
		return r.u.replaceSharesErr
	}
	r.u.state.shares[expenseID] = append([]model.ExpenseShare(nil), shares...)
	return nil
}

type memPaymentRepo struct{ u *memUoW }

func (r *memPaymentRepo) Create(_ context.Context, p *model.Payment) error {
	for _, existing := range r.u.state.payments {
		if existing.ID == p.ID {
			return repository.ErrUniqueViolation
		}
		if p.ProviderPaymentID != nil && existing.ProviderPaymentID != nil && *existing.ProviderPaymentID == *p.ProviderPaymentID {
			return repository.ErrUniqueViolation
		}
	}
	r.u.state.payments[p.ID] = *p
	return nil
}

func (r *memPaymentRepo) FindByID(_ context.Context, id string) (*model.Payment, error) {
	p, ok := r.u.state.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memPaymentRepo) FindByProviderPaymentID(_ context.Context, providerPaymentID string) (*model.Payment, error) {
	for _, p := range r.u.state.payments {
		if p.ProviderPaymentID != nil && *p.ProviderPaymentID == providerPaymentID {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memPaymentRepo) LockByID(ctx context.Context, id string) (*model.Payment, error) {
	return r.FindByID(ctx, id)
}

func (r *memPaymentRepo) MarkPaid(_ context.Context, id, idempotencyKey string, at time.Time) (bool, error) {
	p, ok := r.u.state.payments[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	if _, used := r.u.state.paidKeys[idempotencyKey]; used {
		return false, nil
	}
	r.u.state.paidKeys[idempotencyKey] = id
	p.Status = model.PaymentStatusPaid
	p.UpdatedAt = at
	r.u.state.payments[id] = p
	return true, nil
}

func (r *memPaymentRepo) UpdateStatus(_ context.Context, id string, status model.PaymentStatus, at time.Time) error {
	p, ok := r.u.state.payments[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = status
	p.UpdatedAt = at
	r.u.state.payments[id] = p
	return nil
}

func (r *memPaymentRepo) SumPaidByEvent(_ context.Context, eventID string) (map[string]decimal.Decimal, error) {
	totals := make(map[string]decimal.Decimal)
	for _, p := range r.u.state.payments {
		if p.EventID != eventID || p.Status != model.PaymentStatusPaid {
			continue
		}
		cur, ok := totals[p.ParticipantID]
		if !ok {
			cur = decimal.Zero
		}
		totals[p.ParticipantID] = cur.Add(p.Amount)
	}
	return totals, nil
}

var (
	_ repository.UnitOfWork = (*memUoW)(nil)

	errForeignKey = &fkError{}
)

type fkError struct{}

func (*fkError) Error() string { return "foreign key violation: participant is still referenced" }
