package safe

import (
	"math"
	"testing"
)

func TestAddUint64(t *testing.T) {
	tests := []struct {
		name   string
		a, b   uint64
		want   uint64
		wantOK bool
	}{
		{"zero", 0, 0, 0, true},
		{"small", 50, 30, 80, true},
		{"max boundary", math.MaxUint64 - 1, 1, math.MaxUint64, true},
		{"overflow by one", math.MaxUint64, 1, 0, false},
		{"overflow large", math.MaxUint64 / 2, math.MaxUint64, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AddUint64(tt.a, tt.b)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("sum = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMustAddUint64_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustAddUint64 should panic on overflow")
		}
	}()
	MustAddUint64(math.MaxUint64, 1)
}
