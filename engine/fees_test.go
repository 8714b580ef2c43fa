package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/susuprotocol/rosca/engine"
)

func TestSplitFee(t *testing.T) {
	tests := []struct {
		name    string
		gross   int64
		bps     uint32
		wantNet int64
		wantFee int64
	}{
		{"zero rate is exactly zero", 1000, 0, 1000, 0},
		{"one percent", 1000, 100, 990, 10},
		{"rounds down", 999, 100, 990, 9},
		{"half", 1000, 5000, 500, 500},
		{"full rate", 1000, 10_000, 0, 1000},
		{"tiny gross rounds to zero fee", 3, 100, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net, fee := engine.SplitFee(tt.gross, tt.bps)
			assert.Equal(t, tt.wantNet, net)
			assert.Equal(t, tt.wantFee, fee)
			assert.Equal(t, tt.gross, net+fee, "split conserves the gross amount")
		})
	}
}
