package trading

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/client/binance"
	"papertrade/internal/config"
	"papertrade/internal/models"
)

// stubDecisions is a canned DecisionClient keyed by access token.
type stubDecisions struct {
	mu           sync.Mutex
	decisions    map[string][]Decision
	failFor      map[string]bool
	refreshCalls int
}

func (s *stubDecisions) RefreshToken(ctx context.Context, refreshToken string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++
	if refreshToken == "" {
		return Token{}, errors.New("no refresh token")
	}
	return Token{
		AccessToken:  "rotated-" + refreshToken,
		RefreshToken: "next-" + refreshToken,
		ExpiresIn:    3600,
	}, nil
}

func (s *stubDecisions) GetUserShades(ctx context.Context, accessToken string) ([]string, error) {
	return []string{"crypto"}, nil
}

func (s *stubDecisions) GetUserSoftMemory(ctx context.Context, accessToken string) ([]string, error) {
	return nil, errors.New("soft memory unavailable")
}

func (s *stubDecisions) GetDecisions(ctx context.Context, accessToken, marketSummary string, persona Persona) ([]Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[accessToken] {
		return nil, errors.New("agent unreachable")
	}
	return s.decisions[accessToken], nil
}

func seedAccount(repo *stubRepo, id, cash string) {
	repo.users[id] = models.User{
		ID:             id,
		Name:           "Trader " + id,
		AccessToken:    "token-" + id,
		RefreshToken:   "refresh-" + id,
		TokenExpiresAt: time.Now().Add(time.Hour),
	}
	repo.portfolios["pf-"+id] = models.Portfolio{
		ID:          "pf-" + id,
		UserID:      id,
		Type:        models.PortfolioTypeAI,
		CashBalance: d(cash),
	}
}

func testOrchestrator(repo *stubRepo, oracle *stubOracle, decisions *stubDecisions) *Orchestrator {
	exec := &Executor{Repo: repo, Oracle: oracle}
	return &Orchestrator{
		Repo:       repo,
		Oracle:     oracle,
		Decisions:  decisions,
		Executor:   exec,
		Monitor:    &Monitor{Repo: repo},
		Recorder:   &Recorder{Repo: repo},
		Cfg:        config.TradingConfig{Concurrency: 2, MaxDecisions: 3},
		TopSymbols: []string{"BTCUSDT"},
	}
}

func TestRunBatchIsolatesAccountFailures(t *testing.T) {
	repo := newStubRepo()
	seedAccount(repo, "a", "10000")
	seedAccount(repo, "b", "10000")
	seedAccount(repo, "c", "10000")

	oracle := &stubOracle{
		prices: map[string]decimal.Decimal{"BTCUSDT": d("50000")},
		tickers: []binance.Ticker{
			{Symbol: "BTCUSDT", Name: "BTC", Price: d("50000"), PriceChangePercent: 1.5, QuoteVolume: 2e9},
		},
	}
	decisions := &stubDecisions{
		decisions: map[string][]Decision{
			"token-a": {{Action: ActionBuy, Symbol: "BTCUSDT", Percentage: 50, Leverage: 2}},
			"token-c": {{Action: ActionHold, Reason: "waiting"}},
		},
		failFor: map[string]bool{"token-b": true},
	}
	o := testOrchestrator(repo, oracle, decisions)

	report, err := o.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if report.Total != 3 {
		t.Fatalf("total = %d, want 3", report.Total)
	}

	byUser := map[string]AccountResult{}
	for _, r := range report.Results {
		byUser[r.UserID] = r
	}
	if byUser["a"].Status != StatusSuccess || byUser["a"].ExecutedTrades != 1 {
		t.Errorf("account a = %+v, want success with 1 trade", byUser["a"])
	}
	if byUser["b"].Status != StatusError {
		t.Errorf("account b = %+v, want error", byUser["b"])
	}
	if byUser["c"].Status != StatusNoTrade {
		t.Errorf("account c = %+v, want no_trade", byUser["c"])
	}

	// a's trade went through despite b's failure.
	pa, _ := repo.GetPortfolioByID(context.Background(), "pf-a")
	if pa.CashBalance.Cmp(d("5000")) != 0 {
		t.Errorf("account a cash = %s, want 5000", pa.CashBalance)
	}

	// Every portfolio got its daily snapshot and the run was recorded.
	for _, id := range []string{"pf-a", "pf-b", "pf-c"} {
		snaps, _ := repo.ListPortfolioSnapshots(context.Background(), id, "")
		if len(snaps) != 1 {
			t.Errorf("%s snapshots = %d, want 1", id, len(snaps))
		}
	}
	if len(repo.batchRuns) != 1 {
		t.Fatalf("batch runs = %d, want 1", len(repo.batchRuns))
	}
	run := repo.batchRuns[0]
	if run.Succeeded != 1 || run.Failed != 1 || run.NoTrade != 1 {
		t.Errorf("run counts = %+v", run)
	}
}

func TestRunBatchRefreshesExpiredToken(t *testing.T) {
	repo := newStubRepo()
	seedAccount(repo, "a", "10000")
	u := repo.users["a"]
	u.TokenExpiresAt = time.Now().Add(-time.Minute)
	repo.users["a"] = u

	oracle := &stubOracle{
		prices:  map[string]decimal.Decimal{"BTCUSDT": d("50000")},
		tickers: []binance.Ticker{{Symbol: "BTCUSDT", Name: "BTC", Price: d("50000")}},
	}
	decisions := &stubDecisions{
		decisions: map[string][]Decision{
			"rotated-refresh-a": {{Action: ActionHold}},
		},
	}
	o := testOrchestrator(repo, oracle, decisions)

	report, err := o.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if decisions.refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", decisions.refreshCalls)
	}
	if report.Results[0].Status != StatusNoTrade {
		t.Errorf("status = %q, want no_trade via rotated token", report.Results[0].Status)
	}
	stored, _ := repo.GetUserByID(context.Background(), "a")
	if stored.AccessToken != "rotated-refresh-a" || stored.RefreshToken != "next-refresh-a" {
		t.Errorf("rotated pair not persisted: %+v", stored)
	}
}

func TestRunBatchCapsDecisions(t *testing.T) {
	repo := newStubRepo()
	seedAccount(repo, "a", "100000")

	oracle := &stubOracle{
		prices:  map[string]decimal.Decimal{"BTCUSDT": d("50000")},
		tickers: []binance.Ticker{{Symbol: "BTCUSDT", Name: "BTC", Price: d("50000")}},
	}
	many := []Decision{
		{Action: ActionBuy, Symbol: "BTCUSDT", Percentage: 10, Leverage: 1},
		{Action: ActionBuy, Symbol: "BTCUSDT", Percentage: 10, Leverage: 1},
		{Action: ActionBuy, Symbol: "BTCUSDT", Percentage: 10, Leverage: 1},
		{Action: ActionBuy, Symbol: "BTCUSDT", Percentage: 10, Leverage: 1},
		{Action: ActionBuy, Symbol: "BTCUSDT", Percentage: 10, Leverage: 1},
	}
	decisions := &stubDecisions{decisions: map[string][]Decision{"token-a": many}}
	o := testOrchestrator(repo, oracle, decisions)

	report, err := o.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if got := report.Results[0].ExecutedTrades; got != 3 {
		t.Errorf("executed trades = %d, want capped at 3", got)
	}
}

func TestRunBatchSkipsLiquidatedAccounts(t *testing.T) {
	repo := newStubRepo()
	seedAccount(repo, "a", "10000")
	at := time.Now().UTC()
	p := repo.portfolios["pf-a"]
	p.LiquidatedAt = &at
	repo.portfolios["pf-a"] = p

	oracle := &stubOracle{tickers: []binance.Ticker{{Symbol: "BTCUSDT", Name: "BTC", Price: d("50000")}}}
	decisions := &stubDecisions{}
	o := testOrchestrator(repo, oracle, decisions)

	report, err := o.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if report.Total != 0 {
		t.Errorf("liquidated account must not be batched, total = %d", report.Total)
	}
}

func TestRunAccountMarksLiquidationAfterTrade(t *testing.T) {
	repo := newStubRepo()
	seedAccount(repo, "a", "100")
	repo.holdings["h-1"] = models.Holding{
		ID: "h-1", PortfolioID: "pf-a", Symbol: "ETHUSDT",
		Leverage: 10, Quantity: d("10"), AvgCost: d("4000"),
	}

	// ETH collapsed: the tier is deep underwater, so any executed trade should
	// be followed by the equity check wiping the account.
	oracle := &stubOracle{
		prices: map[string]decimal.Decimal{
			"BTCUSDT": d("50000"),
			"ETHUSDT": d("2000"),
		},
		tickers: []binance.Ticker{{Symbol: "BTCUSDT", Name: "BTC", Price: d("50000")}},
	}
	decisions := &stubDecisions{
		decisions: map[string][]Decision{
			"token-a": {{Action: ActionBuy, Symbol: "BTCUSDT", Percentage: 50, Leverage: 1}},
		},
	}
	o := testOrchestrator(repo, oracle, decisions)

	result, err := o.RunAccount(context.Background(), "a")
	if err != nil {
		t.Fatalf("RunAccount: %v", err)
	}
	if result.Status != StatusLiquidated {
		t.Fatalf("status = %q, want liquidated", result.Status)
	}
	p, _ := repo.GetPortfolioByID(context.Background(), "pf-a")
	if !p.Liquidated() || len(p.Holdings) != 0 {
		t.Errorf("portfolio not wiped: %+v", p)
	}
}

func TestMarketSummaryMentionsHoldingsAndTickers(t *testing.T) {
	p := &models.Portfolio{
		CashBalance: d("1234.5"),
		Holdings: []models.Holding{
			{Symbol: "BTCUSDT", Quantity: d("0.5"), AvgCost: d("40000"), Leverage: 2},
		},
	}
	tickers := []binance.Ticker{
		{Symbol: "BTCUSDT", Name: "BTC", Price: d("50000"), PriceChangePercent: -2.5, QuoteVolume: 3e9},
	}
	got := MarketSummary(p, tickers)
	for _, want := range []string{"1234.50", "BTCUSDT", "2x", "-2.50%", "BTC"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
}
