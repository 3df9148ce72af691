package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestScaleAmount(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		decimals int32
		want     string
		wantErr  bool
	}{
		{name: "trc20 five units", raw: "5000000", decimals: 6, want: "5"},
		{name: "bep20 two and a half", raw: "2500000000000000000", decimals: 18, want: "2.5"},
		{name: "sub unit", raw: "1", decimals: 6, want: "0.000001"},
		{name: "zero", raw: "0", decimals: 18, want: "0"},
		{name: "surrounding whitespace", raw: " 42 ", decimals: 0, want: "42"},
		{name: "larger than int64", raw: "123456789012345678901234567890", decimals: 18, want: "123456789012.34567890123456789"},
		{name: "negative", raw: "-1", decimals: 6, wantErr: true},
		{name: "fractional", raw: "1.5", decimals: 6, wantErr: true},
		{name: "garbage", raw: "abc", decimals: 6, wantErr: true},
		{name: "empty", raw: "", decimals: 6, wantErr: true},
		{name: "negative decimals", raw: "1", decimals: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScaleAmount(tt.raw, tt.decimals)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ScaleAmount(%q) expected error, got %s", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ScaleAmount(%q) error = %v", tt.raw, err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ScaleAmount(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseNetwork(t *testing.T) {
	tests := []struct {
		input   string
		want    Network
		wantErr bool
	}{
		{"TRC20", NetworkTRC20, false},
		{"bep20", NetworkBEP20, false},
		{" trc20 ", NetworkTRC20, false},
		{"ERC20", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseNetwork(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseNetwork(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseNetwork(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestStatusValidity(t *testing.T) {
	if !StatusConfirmed.IsValid() || !StatusPending.IsValid() || !StatusFailed.IsValid() {
		t.Error("expected ledger statuses to be valid")
	}
	if EntryStatus("settled").IsValid() {
		t.Error("unexpected valid ledger status")
	}
	if !WithdrawalApproved.IsValid() || WithdrawalStatus("done").IsValid() {
		t.Error("withdrawal status validity mismatch")
	}
	if !DepositSuccess.IsValid() || DepositStatus("confirmed").IsValid() {
		t.Error("deposit status validity mismatch")
	}
}
