package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ledger/internal/domain"

	"github.com/shopspring/decimal"
)

var errUnitClosed = errors.New("unit of work already finished")

// Store keeps accounts, banks and outbox messages in process memory.
// A writable unit of work holds the write lock until Commit or Rollback, so
// writers are fully serialised. Changes are staged and applied on Commit.
type Store struct {
	mu            sync.RWMutex
	accounts      map[int64]domain.Account
	banks         map[int64]domain.Bank
	outbox        []domain.OutboxMessage
	nextAccountID int64
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[int64]domain.Account),
		banks:    make(map[int64]domain.Bank),
	}
}

// SeedBank inserts or replaces a bank. Banks are not created through units of work.
func (s *Store) SeedBank(bank domain.Bank) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banks[bank.ID] = bank
}

// SeedAccount inserts an account and returns it with its assigned ID.
func (s *Store) SeedAccount(account domain.Account) domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.ID == 0 {
		s.nextAccountID++
		account.ID = s.nextAccountID
	} else if account.ID > s.nextAccountID {
		s.nextAccountID = account.ID
	}
	s.accounts[account.ID] = copyAccount(account)
	return account
}

// SeedDemoData loads the bank and the two accounts the service ships with.
func (s *Store) SeedDemoData() {
	bankID := int64(1)
	s.SeedBank(domain.Bank{ID: bankID, Name: "Banco Financiero"})
	s.SeedAccount(domain.Account{Person: "Paul", Balance: decimal.NewFromInt(1000), BankID: &bankID})
	s.SeedAccount(domain.Account{Person: "Fernando", Balance: decimal.NewFromInt(2000), BankID: &bankID})
}

// Messages returns a copy of every outbox message in insertion order.
func (s *Store) Messages() []domain.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.OutboxMessage(nil), s.outbox...)
}

func (s *Store) Begin(ctx context.Context, readOnly bool) (domain.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if readOnly {
		s.mu.RLock()
	} else {
		s.mu.Lock()
	}
	u := &unitOfWork{
		store:    s,
		readOnly: readOnly,
		accounts: make(map[int64]*domain.Account),
		deleted:  make(map[int64]bool),
		banks:    make(map[int64]*domain.Bank),
		sent:     make(map[string]time.Time),
	}
	return u, nil
}

type unitOfWork struct {
	store    *Store
	readOnly bool
	done     bool

	accounts map[int64]*domain.Account
	deleted  map[int64]bool
	banks    map[int64]*domain.Bank
	appended []domain.OutboxMessage
	sent     map[string]time.Time
}

func (u *unitOfWork) Accounts() domain.AccountStore { return accountStore{u} }
func (u *unitOfWork) Banks() domain.BankStore       { return bankStore{u} }
func (u *unitOfWork) Outbox() domain.OutboxStore    { return outboxStore{u} }

func (u *unitOfWork) Commit() error {
	if u.done {
		return errUnitClosed
	}
	s := u.store
	if !u.readOnly {
		for id := range u.deleted {
			delete(s.accounts, id)
		}
		for id, account := range u.accounts {
			s.accounts[id] = copyAccount(*account)
		}
		for id, bank := range u.banks {
			s.banks[id] = *bank
		}
		for i := range s.outbox {
			if at, ok := u.sent[s.outbox[i].ID]; ok {
				sentAt := at
				s.outbox[i].Status = domain.OutboxStatusSent
				s.outbox[i].SentAt = &sentAt
			}
		}
		s.outbox = append(s.outbox, u.appended...)
	}
	u.release()
	return nil
}

func (u *unitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.release()
	return nil
}

func (u *unitOfWork) release() {
	u.done = true
	if u.readOnly {
		u.store.mu.RUnlock()
	} else {
		u.store.mu.Unlock()
	}
}

func (u *unitOfWork) checkWrite() error {
	if u.done {
		return errUnitClosed
	}
	if u.readOnly {
		return domain.ErrReadOnly
	}
	return nil
}

func (u *unitOfWork) account(id int64) (domain.Account, bool) {
	if u.deleted[id] {
		return domain.Account{}, false
	}
	if staged, ok := u.accounts[id]; ok {
		return *staged, true
	}
	account, ok := u.store.accounts[id]
	return account, ok
}

func (u *unitOfWork) accountIDs() []int64 {
	ids := make([]int64, 0, len(u.store.accounts)+len(u.accounts))
	seen := make(map[int64]bool)
	for id := range u.store.accounts {
		ids = append(ids, id)
		seen[id] = true
	}
	for id := range u.accounts {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type accountStore struct{ u *unitOfWork }

func (s accountStore) Get(ctx context.Context, id int64) (*domain.Account, error) {
	if s.u.done {
		return nil, errUnitClosed
	}
	account, ok := s.u.account(id)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	result := copyAccount(account)
	return &result, nil
}

func (s accountStore) FindByPerson(ctx context.Context, person string) (*domain.Account, error) {
	if s.u.done {
		return nil, errUnitClosed
	}
	for _, id := range s.u.accountIDs() {
		if account, ok := s.u.account(id); ok && account.Person == person {
			result := copyAccount(account)
			return &result, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (s accountStore) List(ctx context.Context) ([]domain.Account, error) {
	if s.u.done {
		return nil, errUnitClosed
	}
	accounts := []domain.Account{}
	for _, id := range s.u.accountIDs() {
		if account, ok := s.u.account(id); ok {
			accounts = append(accounts, copyAccount(account))
		}
	}
	return accounts, nil
}

func (s accountStore) Put(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	if err := s.u.checkWrite(); err != nil {
		return nil, err
	}
	if err := s.checkBank(account.BankID); err != nil {
		return nil, err
	}
	stored := copyAccount(*account)
	if stored.ID == 0 {
		s.u.store.nextAccountID++
		stored.ID = s.u.store.nextAccountID
	} else if _, ok := s.u.account(stored.ID); !ok {
		return nil, domain.ErrAccountNotFound
	}
	staged := copyAccount(stored)
	s.u.accounts[stored.ID] = &staged
	return &stored, nil
}

func (s accountStore) Delete(ctx context.Context, id int64) error {
	if err := s.u.checkWrite(); err != nil {
		return err
	}
	if _, ok := s.u.account(id); !ok {
		return domain.ErrAccountNotFound
	}
	delete(s.u.accounts, id)
	s.u.deleted[id] = true
	return nil
}

func (s accountStore) checkBank(id *int64) error {
	if id == nil {
		return nil
	}
	if _, ok := s.u.banks[*id]; ok {
		return nil
	}
	if _, ok := s.u.store.banks[*id]; !ok {
		return domain.ErrBankNotFound
	}
	return nil
}

type bankStore struct{ u *unitOfWork }

func (s bankStore) Get(ctx context.Context, id int64) (*domain.Bank, error) {
	if s.u.done {
		return nil, errUnitClosed
	}
	if staged, ok := s.u.banks[id]; ok {
		bank := *staged
		return &bank, nil
	}
	bank, ok := s.u.store.banks[id]
	if !ok {
		return nil, domain.ErrBankNotFound
	}
	return &bank, nil
}

func (s bankStore) Put(ctx context.Context, bank *domain.Bank) (*domain.Bank, error) {
	if err := s.u.checkWrite(); err != nil {
		return nil, err
	}
	if _, ok := s.u.store.banks[bank.ID]; !ok {
		return nil, domain.ErrBankNotFound
	}
	staged := *bank
	s.u.banks[bank.ID] = &staged
	stored := *bank
	return &stored, nil
}

type outboxStore struct{ u *unitOfWork }

func (s outboxStore) Append(ctx context.Context, msg *domain.OutboxMessage) error {
	if err := s.u.checkWrite(); err != nil {
		return err
	}
	stored := *msg
	stored.Payload = append([]byte(nil), msg.Payload...)
	s.u.appended = append(s.u.appended, stored)
	return nil
}

func (s outboxStore) Pending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if s.u.done {
		return nil, errUnitClosed
	}
	var messages []domain.OutboxMessage
	for _, msg := range s.u.store.outbox {
		if len(messages) >= limit {
			break
		}
		if msg.Status == domain.OutboxStatusPending {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func (s outboxStore) MarkSent(ctx context.Context, id string) error {
	if err := s.u.checkWrite(); err != nil {
		return err
	}
	for _, msg := range s.u.store.outbox {
		if msg.ID == id {
			s.u.sent[id] = time.Now()
			return nil
		}
	}
	return fmt.Errorf("no outbox message found with id %s to update status", id)
}

func copyAccount(account domain.Account) domain.Account {
	if account.BankID != nil {
		bankID := *account.BankID
		account.BankID = &bankID
	}
	return account
}
