package model

import (
	"testing"
	"time"
)

func TestParseTransactionType(t *testing.T) {
	for _, typ := range TransactionTypes {
		parsed, err := ParseTransactionType(string(typ))
		if err != nil {
			t.Errorf("ParseTransactionType(%q): unexpected error: %v", typ, err)
		}
		if parsed != typ {
			t.Errorf("ParseTransactionType(%q): got %q", typ, parsed)
		}
	}

	if _, err := ParseTransactionType("chargeback"); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := ParseTransactionType(""); err == nil {
		t.Error("expected error for empty type")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to TransactionStatus
		want     bool
	}{
		{StatusPending, StatusSucceeded, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCanceled, true},
		{StatusPending, StatusReversed, false},
		{StatusSucceeded, StatusReversed, true},
		{StatusSucceeded, StatusPending, false},
		{StatusSucceeded, StatusFailed, false},
		{StatusFailed, StatusSucceeded, false},
		{StatusFailed, StatusPending, false},
		{StatusReversed, StatusSucceeded, false},
		{StatusCanceled, StatusPending, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s): got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status TransactionStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusSucceeded, false}, // may still be reversed
		{StatusFailed, true},
		{StatusReversed, true},
		{StatusCanceled, true},
	}

	for _, tt := range tests {
		if got := IsTerminal(tt.status); got != tt.want {
			t.Errorf("IsTerminal(%s): got %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestEffectOf(t *testing.T) {
	tests := []struct {
		typ  TransactionType
		want BalanceEffect
	}{
		{TypePayment, EffectCredit},
		{TypeCapture, EffectCredit},
		{TypeRefund, EffectDebit},
		{TypePayout, EffectDebit},
		{TypeTransfer, EffectDebit},
		{TypeReversal, EffectDebit},
		{TypeAuthorization, EffectNone},
	}

	for _, tt := range tests {
		if got := EffectOf(tt.typ); got != tt.want {
			t.Errorf("EffectOf(%s): got %d, want %d", tt.typ, got, tt.want)
		}
	}

	// Every declared type must have an explicit entry.
	for _, typ := range TransactionTypes {
		if _, ok := balanceEffects[typ]; !ok {
			t.Errorf("type %s has no balance effect", typ)
		}
	}
}

func TestBalanceContribution(t *testing.T) {
	tests := []struct {
		name   string
		typ    TransactionType
		status TransactionStatus
		amount int64
		want   int64
	}{
		{"succeeded payment credits", TypePayment, StatusSucceeded, 500, 500},
		{"succeeded capture credits", TypeCapture, StatusSucceeded, 250, 250},
		{"succeeded refund debits", TypeRefund, StatusSucceeded, 200, -200},
		{"succeeded payout debits", TypePayout, StatusSucceeded, 300, -300},
		{"succeeded reversal debits", TypeReversal, StatusSucceeded, 100, -100},
		{"succeeded authorization is a hold", TypeAuthorization, StatusSucceeded, 999, 0},
		{"pending payment contributes nothing", TypePayment, StatusPending, 500, 0},
		{"failed payment contributes nothing", TypePayment, StatusFailed, 500, 0},
		{"canceled refund contributes nothing", TypeRefund, StatusCanceled, 500, 0},
		{"reversed payment keeps its credit", TypePayment, StatusReversed, 500, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BalanceContribution(tt.typ, tt.status, tt.amount); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReversalPairNetsToZero(t *testing.T) {
	// A reversed payment plus its reversal entry must cancel exactly.
	original := BalanceContribution(TypePayment, StatusReversed, 1000)
	reversal := BalanceContribution(TypeReversal, StatusSucceeded, 1000)
	if original+reversal != 0 {
		t.Errorf("pair nets to %d, want 0", original+reversal)
	}
}

func TestInitialStatus(t *testing.T) {
	if got := InitialStatus(TypeAuthorization); got != StatusPending {
		t.Errorf("authorization: got %s, want %s", got, StatusPending)
	}
	for _, typ := range []TransactionType{TypePayment, TypeRefund, TypePayout, TypeTransfer, TypeCapture} {
		if got := InitialStatus(typ); got != StatusSucceeded {
			t.Errorf("%s: got %s, want %s", typ, got, StatusSucceeded)
		}
	}
}

func TestValidCurrency(t *testing.T) {
	for _, code := range []string{"USD", "EUR", "GBP", "JPY", "CAD", "AUD"} {
		if !ValidCurrency(code) {
			t.Errorf("expected %s to be valid", code)
		}
	}
	for _, code := range []string{"usd", "BTC", "XXX", ""} {
		if ValidCurrency(code) {
			t.Errorf("expected %s to be invalid", code)
		}
	}
}

func TestTransactionValidate(t *testing.T) {
	base := func() Transaction {
		return Transaction{
			TransactionID: "txn_1",
			AccountID:     "acc_1",
			Type:          TypePayment,
			Status:        StatusSucceeded,
			Amount:        1000,
			Currency:      "USD",
			OccurredAt:    time.Now(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr bool
	}{
		{"valid", func(txn *Transaction) {}, false},
		{"zero amount is allowed", func(txn *Transaction) { txn.Amount = 0 }, false},
		{"negative amount", func(txn *Transaction) { txn.Amount = -1 }, true},
		{"missing transaction id", func(txn *Transaction) { txn.TransactionID = "" }, true},
		{"missing account id", func(txn *Transaction) { txn.AccountID = "" }, true},
		{"unknown type", func(txn *Transaction) { txn.Type = "chargeback" }, true},
		{"unknown status", func(txn *Transaction) { txn.Status = "maybe" }, true},
		{"unknown currency", func(txn *Transaction) { txn.Currency = "BTC" }, true},
		{"failed without reason", func(txn *Transaction) { txn.Status = StatusFailed }, true},
		{"failed with reason", func(txn *Transaction) {
			txn.Status = StatusFailed
			txn.FailureReason = FailureInsufficientFunds
		}, false},
		{"failed with unknown reason", func(txn *Transaction) {
			txn.Status = StatusFailed
			txn.FailureReason = "bad_luck"
		}, true},
		{"reason on a succeeded transaction", func(txn *Transaction) {
			txn.FailureReason = FailureTimeout
		}, true},
		{"reversal without reference", func(txn *Transaction) { txn.Type = TypeReversal }, true},
		{"reversal with reference", func(txn *Transaction) {
			txn.Type = TypeReversal
			txn.Reverses = "txn_0"
		}, false},
		{"reference on a non-reversal", func(txn *Transaction) { txn.Reverses = "txn_0" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := base()
			tt.mutate(&txn)
			err := txn.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
