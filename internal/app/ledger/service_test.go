package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"ledger/internal/domain"
	"ledger/internal/repository/memory"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// countingTxManager wraps a real store and records the writes made through it.
type countingTxManager struct {
	inner          domain.TxManager
	begins         int
	accountPuts    int
	bankPuts       int
	bankPutErr     error
	panicOnBankPut bool
}

func (m *countingTxManager) Begin(ctx context.Context, readOnly bool) (domain.UnitOfWork, error) {
	m.begins++
	uow, err := m.inner.Begin(ctx, readOnly)
	if err != nil {
		return nil, err
	}
	return &countingUnit{UnitOfWork: uow, m: m}, nil
}

type countingUnit struct {
	domain.UnitOfWork
	m *countingTxManager
}

func (u *countingUnit) Accounts() domain.AccountStore {
	return &countingAccounts{AccountStore: u.UnitOfWork.Accounts(), m: u.m}
}

func (u *countingUnit) Banks() domain.BankStore {
	return &countingBanks{BankStore: u.UnitOfWork.Banks(), m: u.m}
}

type countingAccounts struct {
	domain.AccountStore
	m *countingTxManager
}

func (a *countingAccounts) Put(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	a.m.accountPuts++
	return a.AccountStore.Put(ctx, account)
}

type countingBanks struct {
	domain.BankStore
	m *countingTxManager
}

func (b *countingBanks) Put(ctx context.Context, bank *domain.Bank) (*domain.Bank, error) {
	b.m.bankPuts++
	if b.m.panicOnBankPut {
		panic("bank store exploded")
	}
	if b.m.bankPutErr != nil {
		return nil, b.m.bankPutErr
	}
	return b.BankStore.Put(ctx, bank)
}

func newTestService(t *testing.T, opts Options) (LedgerService, *memory.Store, *countingTxManager) {
	t.Helper()
	store := memory.NewStore()
	store.SeedDemoData()
	tm := &countingTxManager{inner: store}
	return NewLedgerService(tm, opts, zap.NewNop()), store, tm
}

func transferReq(source, target int64, amount string) TransferRequest {
	return TransferRequest{
		BankID:          1,
		SourceAccountID: source,
		TargetAccountID: target,
		Amount:          decimal.RequireFromString(amount),
	}
}

func assertBalance(t *testing.T, svc LedgerService, id int64, want string) {
	t.Helper()
	got, err := svc.GetBalance(context.Background(), id)
	if err != nil {
		t.Fatalf("GetBalance(%d) returned error: %v", id, err)
	}
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("expected balance of account %d to be %s, got %s", id, want, got)
	}
}

func assertTotalTransfers(t *testing.T, svc LedgerService, want int64) {
	t.Helper()
	got, err := svc.GetTotalTransfers(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetTotalTransfers returned error: %v", err)
	}
	if got != want {
		t.Fatalf("expected %d total transfers, got %d", want, got)
	}
}

func TestTransfer_MovesMoneyAndCounts(t *testing.T) {
	svc, _, tm := newTestService(t, Options{AllowSelfTransfer: true})

	result, err := svc.Transfer(context.Background(), transferReq(1, 2, "100"))
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}

	if tm.accountPuts != 2 {
		t.Fatalf("expected 2 account writes, got %d", tm.accountPuts)
	}
	if tm.bankPuts != 1 {
		t.Fatalf("expected 1 bank write, got %d", tm.bankPuts)
	}
	if result.TransferID == "" || result.TotalTransfers != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.SourceAccountID != 1 || result.TargetAccountID != 2 {
		t.Fatalf("expected source 1 and target 2, got %+v", result)
	}

	assertBalance(t, svc, 1, "900")
	assertBalance(t, svc, 2, "2100")
	assertTotalTransfers(t, svc, 1)
}

func TestTransfer_ReversedIDsKeepDirection(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	if _, err := svc.Transfer(context.Background(), transferReq(2, 1, "500")); err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}

	assertBalance(t, svc, 1, "1500")
	assertBalance(t, svc, 2, "1500")
}

func TestTransfer_InsufficientBalanceWritesNothing(t *testing.T) {
	svc, _, tm := newTestService(t, Options{})

	_, err := svc.Transfer(context.Background(), transferReq(1, 2, "1200"))
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if tm.accountPuts != 0 || tm.bankPuts != 0 {
		t.Fatalf("expected no writes, got %d account and %d bank writes", tm.accountPuts, tm.bankPuts)
	}

	assertBalance(t, svc, 1, "1000")
	assertBalance(t, svc, 2, "2000")
	assertTotalTransfers(t, svc, 0)
}

func TestTransfer_NotFoundWritesNothing(t *testing.T) {
	tests := []struct {
		name    string
		req     TransferRequest
		wantErr error
	}{
		{name: "missing source", req: transferReq(9, 2, "10"), wantErr: domain.ErrAccountNotFound},
		{name: "missing target", req: transferReq(1, 9, "10"), wantErr: domain.ErrAccountNotFound},
		{name: "missing bank", req: TransferRequest{BankID: 5, SourceAccountID: 1, TargetAccountID: 2, Amount: decimal.NewFromInt(10)}, wantErr: domain.ErrBankNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, tm := newTestService(t, Options{})

			_, err := svc.Transfer(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("expected error to match ErrNotFound, got %v", err)
			}
			if tm.accountPuts != 0 || tm.bankPuts != 0 {
				t.Fatalf("expected no writes, got %d account and %d bank writes", tm.accountPuts, tm.bankPuts)
			}

			assertBalance(t, svc, 1, "1000")
			assertBalance(t, svc, 2, "2000")
			assertTotalTransfers(t, svc, 0)
		})
	}
}

func TestTransfer_InvalidAmountSkipsStore(t *testing.T) {
	for _, amount := range []string{"0", "-10"} {
		svc, _, tm := newTestService(t, Options{})

		_, err := svc.Transfer(context.Background(), transferReq(1, 2, amount))
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("amount %s: expected ErrInvalidAmount, got %v", amount, err)
		}
		if tm.begins != 0 {
			t.Fatalf("amount %s: expected no unit of work, got %d", amount, tm.begins)
		}
	}
}

func TestTransfer_SameAccountCounted(t *testing.T) {
	svc, _, tm := newTestService(t, Options{AllowSelfTransfer: true})

	if _, err := svc.Transfer(context.Background(), transferReq(1, 1, "250")); err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	if tm.accountPuts != 2 || tm.bankPuts != 1 {
		t.Fatalf("expected 2 account and 1 bank write, got %d and %d", tm.accountPuts, tm.bankPuts)
	}

	assertBalance(t, svc, 1, "1000")
	assertTotalTransfers(t, svc, 1)

	_, err := svc.Transfer(context.Background(), transferReq(1, 1, "1000.01"))
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance for uncovered self transfer, got %v", err)
	}
	assertTotalTransfers(t, svc, 1)
}

func TestTransfer_SameAccountRejectedWhenDisabled(t *testing.T) {
	svc, _, tm := newTestService(t, Options{AllowSelfTransfer: false})

	_, err := svc.Transfer(context.Background(), transferReq(1, 1, "10"))
	if !errors.Is(err, domain.ErrSameAccount) {
		t.Fatalf("expected ErrSameAccount, got %v", err)
	}
	if tm.begins != 0 {
		t.Fatalf("expected no unit of work, got %d", tm.begins)
	}
	assertTotalTransfers(t, svc, 0)
}

func TestTransfer_WriteFailureRollsBack(t *testing.T) {
	svc, _, tm := newTestService(t, Options{})
	tm.bankPutErr = errors.New("disk full")

	_, err := svc.Transfer(context.Background(), transferReq(1, 2, "100"))
	if err == nil || !errors.Is(err, tm.bankPutErr) {
		t.Fatalf("expected bank write error, got %v", err)
	}

	assertBalance(t, svc, 1, "1000")
	assertBalance(t, svc, 2, "2000")
	assertTotalTransfers(t, svc, 0)
}

func TestTransfer_PanicRollsBackAndRepanics(t *testing.T) {
	svc, _, tm := newTestService(t, Options{})
	tm.panicOnBankPut = true

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		svc.Transfer(context.Background(), transferReq(1, 2, "100"))
	}()

	tm.panicOnBankPut = false
	assertBalance(t, svc, 1, "1000")
	assertBalance(t, svc, 2, "2000")
	assertTotalTransfers(t, svc, 0)
}

func TestTransfer_AppendsOutboxMessage(t *testing.T) {
	svc, store, _ := newTestService(t, Options{EventsTopic: "ledger.transfers"})

	result, err := svc.Transfer(context.Background(), transferReq(1, 2, "100.50"))
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}

	messages := store.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 outbox message, got %d", len(messages))
	}
	msg := messages[0]
	if msg.Topic != "ledger.transfers" || msg.MessageType != domain.MessageTypeTransferCompleted {
		t.Fatalf("unexpected outbox message %+v", msg)
	}

	var event domain.TransferCompletedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if event.TransferID != result.TransferID || event.TotalTransfers != 1 {
		t.Fatalf("unexpected event %+v", event)
	}
	if !event.Amount.Equal(decimal.RequireFromString("100.50")) {
		t.Fatalf("expected amount 100.50, got %s", event.Amount)
	}
}

func TestTransfer_NoOutboxMessageWithoutTopicOrOnFailure(t *testing.T) {
	svc, store, _ := newTestService(t, Options{})
	if _, err := svc.Transfer(context.Background(), transferReq(1, 2, "100")); err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	if n := len(store.Messages()); n != 0 {
		t.Fatalf("expected no outbox messages without topic, got %d", n)
	}

	svc, store, _ = newTestService(t, Options{EventsTopic: "ledger.transfers"})
	svc.Transfer(context.Background(), transferReq(1, 2, "5000"))
	if n := len(store.Messages()); n != 0 {
		t.Fatalf("expected no outbox messages for rejected transfer, got %d", n)
	}
}

func TestTransfer_ConcurrentTransfersConserveMoney(t *testing.T) {
	store := memory.NewStore()
	store.SeedDemoData()
	svc := NewLedgerService(store, Options{}, zap.NewNop())

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := int64(0)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := transferReq(1, 2, "35.25")
			if i%2 == 1 {
				req = transferReq(2, 1, "12.75")
			}
			_, err := svc.Transfer(context.Background(), req)
			if err != nil && !errors.Is(err, domain.ErrInsufficientBalance) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	first, _ := svc.GetBalance(context.Background(), 1)
	second, _ := svc.GetBalance(context.Background(), 2)
	if total := first.Add(second); !total.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("expected total balance 3000, got %s", total)
	}
	if first.IsNegative() || second.IsNegative() {
		t.Fatalf("expected non-negative balances, got %s and %s", first, second)
	}
	assertTotalTransfers(t, svc, succeeded)
}

func TestGetBalance_RepeatedReadsAgree(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	first, err := svc.GetBalance(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}
	second, err := svc.GetBalance(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}
	if !first.Equal(second) {
		t.Fatalf("expected identical reads, got %s and %s", first, second)
	}

	if _, err := svc.GetBalance(context.Background(), 99); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := svc.GetTotalTransfers(context.Background(), 99); !errors.Is(err, domain.ErrBankNotFound) {
		t.Fatalf("expected ErrBankNotFound, got %v", err)
	}
}

func TestSave_AssignsIDToNewAccount(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	saved, err := svc.Save(context.Background(), domain.NewAccount("Pepe", decimal.NewFromInt(3000)))
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if saved.ID != 3 {
		t.Fatalf("expected id 3, got %d", saved.ID)
	}
	if saved.Balance.String() != "3000" {
		t.Fatalf("expected balance 3000, got %s", saved.Balance)
	}

	found, err := svc.FindByPerson(context.Background(), "Pepe")
	if err != nil {
		t.Fatalf("FindByPerson returned error: %v", err)
	}
	if !found.Equal(saved) {
		t.Fatalf("expected found account to equal saved account")
	}
}

func TestSave_UpdatesExistingAccount(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	account, err := svc.FindByPerson(context.Background(), "Paul")
	if err != nil {
		t.Fatalf("FindByPerson returned error: %v", err)
	}
	account.Balance = decimal.NewFromInt(3800)
	if _, err := svc.Save(context.Background(), account); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	assertBalance(t, svc, account.ID, "3800")
}

func TestSave_RejectsInvalidAccount(t *testing.T) {
	svc, _, tm := newTestService(t, Options{})

	if _, err := svc.Save(context.Background(), domain.NewAccount("", decimal.NewFromInt(1))); !errors.Is(err, domain.ErrInvalidAccount) {
		t.Fatalf("expected ErrInvalidAccount, got %v", err)
	}
	if _, err := svc.Save(context.Background(), domain.NewAccount("Pepe", decimal.NewFromInt(-1))); !errors.Is(err, domain.ErrInvalidAccount) {
		t.Fatalf("expected ErrInvalidAccount, got %v", err)
	}
	if tm.begins != 0 {
		t.Fatalf("expected no unit of work for invalid accounts, got %d", tm.begins)
	}
}

func TestDeleteByID(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	if err := svc.DeleteByID(context.Background(), 2); err != nil {
		t.Fatalf("DeleteByID returned error: %v", err)
	}
	accounts, err := svc.FindAll(context.Background())
	if err != nil {
		t.Fatalf("FindAll returned error: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Person != "Paul" {
		t.Fatalf("expected only Paul to remain, got %+v", accounts)
	}

	if err := svc.DeleteByID(context.Background(), 2); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := svc.FindByID(context.Background(), 2); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
