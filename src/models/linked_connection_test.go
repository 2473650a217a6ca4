package models

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from ConnectionStatus
		to   ConnectionStatus
		want bool
	}{
		{StatusCreated, StatusLoginInProgress, true},
		{StatusCreated, StatusUpdating, true},
		{StatusLoginInProgress, StatusWaitingUserInput, true},
		{StatusWaitingUserInput, StatusLoginInProgress, true},
		{StatusUpdating, StatusUpdated, true},
		{StatusUpdating, StatusOutdated, true},
		{StatusUpdated, StatusUpdating, true},
		{StatusOutdated, StatusUpdating, true},
		{StatusLoginError, StatusCreated, true},
		{StatusError, StatusCreated, true},

		// repeated provider notifications
		{StatusUpdating, StatusUpdating, true},
		{StatusError, StatusError, true},

		{StatusError, StatusUpdated, false},
		{StatusError, StatusUpdating, false},
		{StatusUpdated, StatusCreated, false},
		{StatusCreated, StatusUpdated, false},
		{StatusLoginError, StatusUpdated, false},
		{StatusOutdated, StatusUpdated, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %t, want %t", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsKnownStatus(t *testing.T) {
	for _, s := range []ConnectionStatus{
		StatusCreated, StatusLoginInProgress, StatusWaitingUserInput,
		StatusUpdating, StatusUpdated, StatusOutdated, StatusLoginError, StatusError,
	} {
		if !IsKnownStatus(s) {
			t.Errorf("IsKnownStatus(%s) = false, want true", s)
		}
	}
	if IsKnownStatus("half_synced") {
		t.Error("IsKnownStatus(half_synced) = true, want false")
	}
	if IsKnownStatus("") {
		t.Error("IsKnownStatus(\"\") = true, want false")
	}
}

func TestTransactionTypeInbound(t *testing.T) {
	inbound := []TransactionType{TypeCredit, TypeTransferIn, TypeInterest, TypeRefund}
	outbound := []TransactionType{TypeDebit, TypeTransferOut, TypePayment, TypeFee}

	for _, ty := range inbound {
		if !ty.Inbound() {
			t.Errorf("%s.Inbound() = false, want true", ty)
		}
	}
	for _, ty := range outbound {
		if ty.Inbound() {
			t.Errorf("%s.Inbound() = true, want false", ty)
		}
	}
}
