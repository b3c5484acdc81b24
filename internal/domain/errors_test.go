package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestMarketError(t *testing.T) {
	market := Identity{1, 2, 3}

	t.Run("wraps kind sentinel", func(t *testing.T) {
		err := NewMarketError("withdraw", KindNotAWinner, market)

		if !errors.Is(err, ErrNotAWinner) {
			t.Error("Expected errors.Is to match ErrNotAWinner")
		}
		if errors.Is(err, ErrAlreadyWithdrawn) {
			t.Error("Should not match a different kind")
		}

		wrapped := fmt.Errorf("handler: %w", err)
		kind, ok := KindOf(wrapped)
		if !ok || kind != KindNotAWinner {
			t.Errorf("KindOf = %v, %v; want NotAWinner, true", kind, ok)
		}
	})

	t.Run("message includes op and market", func(t *testing.T) {
		err := NewMarketError("close", KindUnauthorized, market)
		want := "close " + market.String() + ": unauthorized to close market"
		if err.Error() != want {
			t.Errorf("Error message = %q, want %q", err.Error(), want)
		}

		noMarket := NewMarketError("create", KindQuestionTooLong, Identity{})
		if noMarket.Error() != "create: question too long" {
			t.Errorf("Error message = %q", noMarket.Error())
		}
	})

	t.Run("KindOf on plain error", func(t *testing.T) {
		if _, ok := KindOf(errors.New("plain error")); ok {
			t.Error("KindOf should fail for plain errors")
		}
	})
}

func TestKind_Category(t *testing.T) {
	tests := []struct {
		kind Kind
		want Category
	}{
		{KindQuestionTooLong, CategoryValidation},
		{KindInvalidSide, CategoryValidation},
		{KindInvalidAmount, CategoryValidation},
		{KindEndTimeInPast, CategoryValidation},
		{KindMarketNotOpen, CategoryStateConflict},
		{KindMarketClosed, CategoryStateConflict},
		{KindMarketStillActive, CategoryStateConflict},
		{KindMarketNotResolving, CategoryStateConflict},
		{KindMarketNotResolved, CategoryStateConflict},
		{KindAlreadyWithdrawn, CategoryStateConflict},
		{KindNotAWinner, CategoryStateConflict},
		{KindUnauthorized, CategoryAuthorization},
		{KindOracleMismatch, CategoryAuthorization},
		{KindBetMismatch, CategoryAuthorization},
		{KindOverflow, CategoryArithmetic},
		{KindDivisionByZero, CategoryArithmetic},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Category(); got != tt.want {
				t.Errorf("Category() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsRetriable(t *testing.T) {
	market := Identity{9}

	if !IsRetriable(NewMarketError("withdraw", KindMarketNotResolved, market)) {
		t.Error("state conflicts should be retriable")
	}
	if IsRetriable(NewMarketError("close", KindUnauthorized, market)) {
		t.Error("authorization failures should not be retriable")
	}
	if IsRetriable(NewMarketError("place_bet", KindOverflow, market)) {
		t.Error("arithmetic failures should not be retriable")
	}
	if IsRetriable(errors.New("plain error")) {
		t.Error("IsRetriable should return false for plain error")
	}
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")
	err := &ConfigError{Field: "auth.secret", Err: baseErr}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [auth.secret]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, baseErr) {
		t.Error("Expected error to wrap baseErr")
	}
}
