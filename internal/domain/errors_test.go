package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainErrors_AreStableAndUsableWithErrorsIs(t *testing.T) {
	all := []error{ErrBrowserNotReady, ErrPoolClosed, ErrSelectorNotFound}
	for i, a := range all {
		if a == nil {
			t.Fatalf("domain error %d must not be nil", i)
		}
		if a.Error() == "" {
			t.Fatalf("domain error %d message should not be empty", i)
		}
		for j, b := range all {
			if i != j && a == b {
				t.Fatalf("domain errors must be distinct")
			}
		}
	}

	wrapped := fmt.Errorf("%w: #Name", ErrSelectorNotFound)
	if !errors.Is(wrapped, ErrSelectorNotFound) {
		t.Fatalf("expected errors.Is to match ErrSelectorNotFound")
	}

	joined := errors.Join(errors.New("context"), ErrBrowserNotReady)
	if !errors.Is(joined, ErrBrowserNotReady) {
		t.Fatalf("expected errors.Is to match ErrBrowserNotReady")
	}
}

func TestRedemptionRequest_Validate(t *testing.T) {
	valid := RedemptionRequest{
		PinKey:    "AAAA-BBBB-CCCC",
		FullName:  "Juan Pérez",
		BirthDate: "15/03/1990",
		PlayerID:  "123456789",
		Country:   "Argentina",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(r *RedemptionRequest)
		field  string
	}{
		{"missing pin", func(r *RedemptionRequest) { r.PinKey = "" }, "pin_key"},
		{"blank name", func(r *RedemptionRequest) { r.FullName = "   " }, "full_name"},
		{"missing birth date", func(r *RedemptionRequest) { r.BirthDate = "" }, "birth_date"},
		{"missing player id", func(r *RedemptionRequest) { r.PlayerID = "" }, "player_id"},
		{"tab only country", func(r *RedemptionRequest) { r.Country = "\t" }, "country"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := valid
			tc.mutate(&r)
			err := r.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if got := err.Error(); got != "missing required field: "+tc.field {
				t.Fatalf("unexpected error %q", got)
			}
		})
	}
}
