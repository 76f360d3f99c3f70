package trading

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

func TestRecordForUpsertsOneRowPerDay(t *testing.T) {
	repo := newStubRepo()
	seedPortfolio(repo, "5000")
	repo.holdings["h-1"] = models.Holding{
		ID: "h-1", PortfolioID: "pf-1", Symbol: "BTCUSDT",
		Leverage: 2, Quantity: d("0.1"), AvgCost: d("50000"),
	}
	day := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	rec := &Recorder{Repo: repo, Now: func() time.Time { return day }}
	ctx := context.Background()

	prices := map[string]decimal.Decimal{"BTCUSDT": d("60000")}
	if err := rec.RecordFor(ctx, "pf-1", prices); err != nil {
		t.Fatalf("RecordFor: %v", err)
	}

	// Same day again with a moved price: the row is overwritten, not duplicated.
	prices["BTCUSDT"] = d("55000")
	rec.Now = func() time.Time { return day.Add(6 * time.Hour) }
	if err := rec.RecordFor(ctx, "pf-1", prices); err != nil {
		t.Fatalf("RecordFor: %v", err)
	}

	snaps, _ := repo.ListPortfolioSnapshots(ctx, "pf-1", "")
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
	snap := snaps[0]
	if snap.Date != "2025-06-01" {
		t.Errorf("date = %q", snap.Date)
	}
	// 5000 + 0.1*(50000 + 5000*2) = 11000 from the second recording.
	if snap.TotalAssets.Cmp(d("11000")) != 0 {
		t.Errorf("total = %s, want 11000", snap.TotalAssets)
	}

	// Next day appends a second row.
	rec.Now = func() time.Time { return day.AddDate(0, 0, 1) }
	if err := rec.RecordFor(ctx, "pf-1", prices); err != nil {
		t.Fatalf("RecordFor: %v", err)
	}
	snaps, _ = repo.ListPortfolioSnapshots(ctx, "pf-1", "")
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snaps))
	}
}

func TestRecordAllSurvivesMissingPrices(t *testing.T) {
	repo := newStubRepo()
	seedPortfolio(repo, "5000")
	repo.portfolios["pf-2"] = models.Portfolio{
		ID: "pf-2", UserID: "user-2", Type: models.PortfolioTypeAI, CashBalance: d("7000"),
	}
	repo.holdings["h-1"] = models.Holding{
		ID: "h-1", PortfolioID: "pf-1", Symbol: "OBSCUREUSDT",
		Leverage: 1, Quantity: d("10"), AvgCost: d("5"),
	}
	rec := &Recorder{Repo: repo}
	ctx := context.Background()

	if err := rec.RecordAll(ctx, map[string]decimal.Decimal{}); err != nil {
		t.Fatalf("RecordAll: %v", err)
	}
	one, _ := repo.ListPortfolioSnapshots(ctx, "pf-1", "")
	two, _ := repo.ListPortfolioSnapshots(ctx, "pf-2", "")
	if len(one) != 1 || len(two) != 1 {
		t.Fatalf("snapshots = %d/%d, want 1/1", len(one), len(two))
	}
	// The unpriced holding is skipped, cash still counts.
	if one[0].TotalAssets.Cmp(d("5000")) != 0 {
		t.Errorf("pf-1 total = %s, want 5000", one[0].TotalAssets)
	}
}

func TestRecordLiquidatedPortfolioIsZero(t *testing.T) {
	repo := newStubRepo()
	p := seedPortfolio(repo, "123")
	at := time.Now().UTC()
	p.LiquidatedAt = &at
	repo.portfolios[p.ID] = *p
	rec := &Recorder{Repo: repo}
	ctx := context.Background()

	if err := rec.RecordFor(ctx, "pf-1", nil); err != nil {
		t.Fatalf("RecordFor: %v", err)
	}
	snaps, _ := repo.ListPortfolioSnapshots(ctx, "pf-1", "")
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
	if !snaps[0].TotalAssets.IsZero() || !snaps[0].CashBalance.IsZero() {
		t.Errorf("liquidated snapshot = %+v, want zeros", snaps[0])
	}
}
