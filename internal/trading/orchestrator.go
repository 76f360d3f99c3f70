package trading

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/client/binance"
	"papertrade/internal/config"
	"papertrade/internal/models"
	"papertrade/internal/persona"
	"papertrade/internal/repository"
)

// Orchestrator runs one trading round for the whole AI population: one shared
// market snapshot, a bounded worker pool over independent per-account
// pipelines, then a single population-wide snapshot pass. One account's
// failure never touches another's.
type Orchestrator struct {
	Repo      repository.Repository
	Oracle    PriceOracle
	Decisions DecisionClient
	Executor  *Executor
	Monitor   *Monitor
	Recorder  *Recorder
	Logger    *zap.Logger

	Cfg        config.TradingConfig
	TopSymbols []string
}

// RunBatch processes every active AI portfolio. It fails outright only when
// the shared market snapshot cannot be fetched; everything after that is
// isolated per account.
func (o *Orchestrator) RunBatch(ctx context.Context) (*BatchReport, error) {
	startedAt := time.Now().UTC()

	portfolios, err := o.Repo.ListActivePortfolios(ctx, models.PortfolioTypeAI)
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}

	tickers, err := o.Oracle.GetTopTickers(ctx, o.TopSymbols)
	if err != nil {
		return nil, fmt.Errorf("market snapshot: %w", err)
	}

	width := o.Cfg.Concurrency
	if width <= 0 {
		width = 5
	}
	if width > len(portfolios) {
		width = len(portfolios)
	}

	if o.Logger != nil {
		o.Logger.Info("trade batch started",
			zap.Int("accounts", len(portfolios)),
			zap.Int("concurrency", width),
		)
	}

	results := make([]AccountResult, len(portfolios))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < width; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = o.runAccount(ctx, &portfolios[i], tickers)
			}
		}()
	}
	for i := range portfolios {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	// Snapshots run only after every account has settled, over one price map
	// covering all held symbols plus the shared snapshot set.
	prices, err := o.populationPrices(ctx, tickers)
	if err != nil {
		if o.Logger != nil {
			o.Logger.Warn("population price map incomplete", zap.Error(err))
		}
	}
	if err := o.Recorder.RecordAll(ctx, prices); err != nil && o.Logger != nil {
		o.Logger.Warn("post-batch snapshot failed", zap.Error(err))
	}

	report := &BatchReport{Total: len(portfolios), Results: results}
	o.persistRun(ctx, startedAt, report)
	return report, nil
}

// RunAccount is the ad-hoc single-account variant of RunBatch.
func (o *Orchestrator) RunAccount(ctx context.Context, userID string) (AccountResult, error) {
	portfolio, err := o.Repo.GetPortfolioByUserAndType(ctx, userID, models.PortfolioTypeAI)
	if err != nil {
		return AccountResult{}, err
	}
	if portfolio == nil {
		return AccountResult{UserID: userID, Status: StatusError, Error: "no AI portfolio"}, nil
	}
	if portfolio.Liquidated() {
		return AccountResult{UserID: userID, Status: StatusLiquidated}, nil
	}

	tickers, err := o.Oracle.GetTopTickers(ctx, o.TopSymbols)
	if err != nil {
		return AccountResult{}, fmt.Errorf("market snapshot: %w", err)
	}
	return o.runAccount(ctx, portfolio, tickers), nil
}

func (o *Orchestrator) runAccount(ctx context.Context, portfolio *models.Portfolio, tickers []binance.Ticker) AccountResult {
	result := AccountResult{UserID: portfolio.UserID, Status: StatusNoTrade}

	user, err := o.Repo.GetUserByID(ctx, portfolio.UserID)
	if err != nil || user == nil {
		result.Status = StatusError
		result.Error = "user not found"
		return result
	}
	result.UserName = user.Name

	accessToken, err := o.freshToken(ctx, user)
	if err != nil {
		result.Status = StatusError
		result.Error = fmt.Sprintf("token refresh failed: %v", err)
		if o.Logger != nil {
			o.Logger.Warn("token refresh failed",
				zap.String("user", user.Name), zap.Error(err))
		}
		return result
	}

	p := o.fetchPersona(ctx, accessToken, user)
	summary := MarketSummary(portfolio, tickers)

	decisions, err := o.Decisions.GetDecisions(ctx, accessToken, summary, p)
	if err != nil {
		result.Status = StatusError
		result.Error = fmt.Sprintf("decision fetch failed: %v", err)
		if o.Logger != nil {
			o.Logger.Warn("decision fetch failed",
				zap.String("user", user.Name), zap.Error(err))
		}
		return result
	}
	// Cap here; the provider is not trusted to enforce its own limit.
	maxDecisions := o.Cfg.MaxDecisions
	if maxDecisions <= 0 {
		maxDecisions = 3
	}
	if len(decisions) > maxDecisions {
		decisions = decisions[:maxDecisions]
	}
	result.Decisions = decisions

	tradedSymbols := map[string]struct{}{}
	for _, d := range decisions {
		if d.Action == ActionHold {
			if o.Logger != nil {
				o.Logger.Info("decision hold",
					zap.String("user", user.Name),
					zap.String("symbol", d.Symbol),
					zap.String("reason", d.Reason),
				)
			}
			continue
		}
		res, err := o.Executor.Execute(ctx, user.ID, portfolio.ID, d)
		if err != nil {
			if o.Logger != nil {
				o.Logger.Error("trade execution failed",
					zap.String("user", user.Name),
					zap.String("symbol", d.Symbol),
					zap.Error(err),
				)
			}
			continue
		}
		if res.Executed {
			result.ExecutedTrades++
			result.Status = StatusSuccess
			tradedSymbols[d.Symbol] = struct{}{}
		}
	}

	if result.ExecutedTrades > 0 {
		liquidated, err := o.checkLiquidation(ctx, portfolio.ID, tickers, tradedSymbols)
		if err != nil && o.Logger != nil {
			o.Logger.Warn("liquidation check failed",
				zap.String("portfolio_id", portfolio.ID), zap.Error(err))
		}
		if liquidated {
			result.Status = StatusLiquidated
		}
	}
	return result
}

// freshToken returns a usable access token, refreshing and persisting the
// rotated pair when the stored one is within the expiry leeway.
func (o *Orchestrator) freshToken(ctx context.Context, user *models.User) (string, error) {
	leeway := o.Cfg.TokenLeeway
	if leeway <= 0 {
		leeway = 5 * time.Minute
	}
	if time.Now().Before(user.TokenExpiresAt.Add(-leeway)) {
		return user.AccessToken, nil
	}

	token, err := o.Decisions.RefreshToken(ctx, user.RefreshToken)
	if err != nil {
		return "", err
	}
	expiresAt := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	if err := o.Repo.UpdateUserTokens(ctx, user.ID, token.AccessToken, token.RefreshToken, expiresAt); err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// fetchPersona builds the personalization context. Failures here degrade to an
// empty persona instead of failing the account; only token and decision
// failures are account-fatal.
func (o *Orchestrator) fetchPersona(ctx context.Context, accessToken string, user *models.User) Persona {
	p := Persona{
		Bio:          user.Bio,
		StylePersona: persona.PromptFor(user.TradingStyle, user.CustomPersona),
	}
	shades, err := o.Decisions.GetUserShades(ctx, accessToken)
	if err != nil {
		if o.Logger != nil {
			o.Logger.Warn("shades fetch failed", zap.String("user", user.Name), zap.Error(err))
		}
	} else {
		p.Shades = shades
	}
	memories, err := o.Decisions.GetUserSoftMemory(ctx, accessToken)
	if err != nil {
		if o.Logger != nil {
			o.Logger.Warn("memory fetch failed", zap.String("user", user.Name), zap.Error(err))
		}
	} else {
		p.Memories = memories
	}
	return p
}

// checkLiquidation prices the portfolio's current holdings, preferring the
// shared snapshot and topping up anything else with one batched lookup.
func (o *Orchestrator) checkLiquidation(ctx context.Context, portfolioID string, tickers []binance.Ticker, traded map[string]struct{}) (bool, error) {
	prices := priceMapFromTickers(tickers)

	holdings, err := o.Repo.ListHoldingsByPortfolio(ctx, portfolioID)
	if err != nil {
		return false, err
	}
	var missing []string
	for _, h := range holdings {
		if _, ok := prices[h.Symbol]; !ok {
			missing = append(missing, h.Symbol)
		}
	}
	for sym := range traded {
		if _, ok := prices[sym]; !ok {
			missing = append(missing, sym)
		}
	}
	if len(missing) > 0 {
		extra, err := o.Oracle.GetPrices(ctx, dedupe(missing))
		if err == nil {
			for sym, price := range extra {
				prices[sym] = price
			}
		}
	}
	return o.Monitor.CheckAndLiquidate(ctx, portfolioID, prices)
}

// populationPrices merges the shared snapshot with prices for every symbol
// held anywhere, for the post-batch snapshot pass.
func (o *Orchestrator) populationPrices(ctx context.Context, tickers []binance.Ticker) (map[string]decimal.Decimal, error) {
	prices := priceMapFromTickers(tickers)
	held, err := o.Repo.ListHeldSymbols(ctx)
	if err != nil {
		return prices, err
	}
	var missing []string
	for _, sym := range held {
		if _, ok := prices[sym]; !ok {
			missing = append(missing, sym)
		}
	}
	if len(missing) == 0 {
		return prices, nil
	}
	extra, err := o.Oracle.GetPrices(ctx, missing)
	if err != nil {
		return prices, err
	}
	for sym, price := range extra {
		prices[sym] = price
	}
	return prices, nil
}

func (o *Orchestrator) persistRun(ctx context.Context, startedAt time.Time, report *BatchReport) {
	run := &models.BatchRun{
		StartedAt:     startedAt,
		FinishedAt:    time.Now().UTC(),
		TotalAccounts: report.Total,
	}
	for _, r := range report.Results {
		switch r.Status {
		case StatusSuccess:
			run.Succeeded++
		case StatusNoTrade:
			run.NoTrade++
		case StatusError:
			run.Failed++
		case StatusLiquidated:
			run.Liquidated++
		}
	}
	if raw, err := json.Marshal(report.Results); err == nil {
		run.Results = raw
	}
	if err := o.Repo.InsertBatchRun(ctx, run); err != nil && o.Logger != nil {
		o.Logger.Warn("batch run record failed", zap.Error(err))
	}
	if o.Logger != nil {
		o.Logger.Info("trade batch finished",
			zap.Int("total", run.TotalAccounts),
			zap.Int("success", run.Succeeded),
			zap.Int("no_trade", run.NoTrade),
			zap.Int("error", run.Failed),
			zap.Int("liquidated", run.Liquidated),
		)
	}
}

// MarketSummary renders the account state and shared market snapshot as the
// text block the decision source consumes.
func MarketSummary(portfolio *models.Portfolio, tickers []binance.Ticker) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Available cash: $%s\n", portfolio.CashBalance.StringFixed(2))

	if len(portfolio.Holdings) == 0 {
		b.WriteString("Holdings: none\n")
	} else {
		parts := make([]string, 0, len(portfolio.Holdings))
		for _, h := range portfolio.Holdings {
			parts = append(parts, fmt.Sprintf("%s: %s units, avg $%s, %dx",
				h.Symbol, h.Quantity.String(), h.AvgCost.StringFixed(2), h.Leverage))
		}
		fmt.Fprintf(&b, "Holdings: %s\n", strings.Join(parts, "; "))
	}

	b.WriteString("Market data:\n")
	for _, t := range tickers {
		sign := ""
		if t.PriceChangePercent >= 0 {
			sign = "+"
		}
		fmt.Fprintf(&b, "%s: $%s (24h %s%.2f%%, volume $%.0fM)\n",
			t.Name, t.Price.String(), sign, t.PriceChangePercent, t.QuoteVolume/1e6)
	}
	return b.String()
}

func priceMapFromTickers(tickers []binance.Ticker) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(tickers))
	for _, t := range tickers {
		prices[t.Symbol] = t.Price
	}
	return prices
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
