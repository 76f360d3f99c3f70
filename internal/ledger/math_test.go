package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLeveragedMarketValue_Leverage1IsPlainMarketValue(t *testing.T) {
	got := LeveragedMarketValue(d("2"), d("100"), d("130"), 1)
	if got.Cmp(d("260")) != 0 {
		t.Fatalf("value=%s want=260", got.String())
	}
}

func TestLeveragedMarketValue_AmplifiesGain(t *testing.T) {
	// 0.1 * (50000 + (60000-50000)*2) = 7000
	got := LeveragedMarketValue(d("0.1"), d("50000"), d("60000"), 2)
	if got.Cmp(d("7000")) != 0 {
		t.Fatalf("value=%s want=7000", got.String())
	}
}

func TestLeveragedMarketValue_CanGoNegative(t *testing.T) {
	// 10 * (100 + (50-100)*10) = -4000; no floor here.
	got := LeveragedMarketValue(d("10"), d("100"), d("50"), 10)
	if got.Cmp(d("-4000")) != 0 {
		t.Fatalf("value=%s want=-4000", got.String())
	}
}

func TestLeveragedSaleProceeds_FlooredAtZero(t *testing.T) {
	got := LeveragedSaleProceeds(d("10"), d("100"), d("50"), 10)
	if !got.IsZero() {
		t.Fatalf("proceeds=%s want=0", got.String())
	}
}

func TestLeveragedSaleProceeds_PositivePassesThrough(t *testing.T) {
	got := LeveragedSaleProceeds(d("0.1"), d("50000"), d("60000"), 2)
	if got.Cmp(d("7000")) != 0 {
		t.Fatalf("proceeds=%s want=7000", got.String())
	}
}

func TestBlendAvgCost_WeightedAverage(t *testing.T) {
	// (100*2 + 160*2) / 4 = 130
	got := BlendAvgCost(d("100"), d("2"), d("160"), d("2"))
	if got.Cmp(d("130")) != 0 {
		t.Fatalf("avgCost=%s want=130", got.String())
	}
}

func TestBlendAvgCost_ZeroTotalFallsBackToPrice(t *testing.T) {
	got := BlendAvgCost(d("100"), d("0"), d("42"), d("0"))
	if got.Cmp(d("42")) != 0 {
		t.Fatalf("avgCost=%s want=42", got.String())
	}
}

func TestClampLeverage(t *testing.T) {
	cases := []struct{ in, want int }{
		{-3, 1}, {0, 1}, {1, 1}, {5, 5}, {10, 10}, {11, 10}, {100, 10},
	}
	for _, c := range cases {
		if got := ClampLeverage(c.in); got != c.want {
			t.Fatalf("ClampLeverage(%d)=%d want=%d", c.in, got, c.want)
		}
	}
}
