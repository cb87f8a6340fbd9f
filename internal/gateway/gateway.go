// Package gateway implements the paper broker gateway: the responder side
// of the broker RPC protocol plus a simulated fill engine. It answers every
// request type on the request channel, executes orders arriving on the
// order channel, and reports fills on the shared execution channel.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"trade-routerv1/config"
	"trade-routerv1/internal/bus"
	"trade-routerv1/internal/metrics"
	"trade-routerv1/internal/model"
	"trade-routerv1/internal/store/sqlite"
)

// AccountSink mirrors account state into the shared store after each fill so
// the composition pipeline reads fresh snapshots. Satisfied by the Redis
// account store; nil disables mirroring.
type AccountSink interface {
	SaveAccount(ctx context.Context, account *model.Account) error
}

// Gateway is the paper broker. All simulated account state lives behind one
// mutex; request handling is sequential per message, which is plenty for a
// paper venue.
type Gateway struct {
	bus         bus.Bus
	journal     *sqlite.TradeJournal // may be nil
	sink        AccountSink          // may be nil
	metrics     *metrics.Metrics     // may be nil
	log         *slog.Logger
	slippageBps int64

	mu       sync.Mutex
	accounts map[string]*model.Account
	prices   map[string]float64
	orderSeq int64
}

// New builds the gateway with simulated accounts seeded from configuration.
func New(b bus.Bus, cfg config.GatewayConfig, journal *sqlite.TradeJournal, sink AccountSink, m *metrics.Metrics, log *slog.Logger) *Gateway {
	accounts := make(map[string]*model.Account, len(cfg.Accounts))
	for _, ga := range cfg.Accounts {
		deposits := make(map[model.Currency]float64, len(ga.Deposits))
		for c, amount := range ga.Deposits {
			deposits[model.Currency(c)] = amount
		}
		accounts[ga.Alias] = &model.Account{
			Alias:    ga.Alias,
			Broker:   ga.Broker,
			Deposits: deposits,
			Active:   true,
		}
	}
	return &Gateway{
		bus:         b,
		journal:     journal,
		sink:        sink,
		metrics:     m,
		log:         log,
		slippageBps: cfg.SlippageBps,
		accounts:    accounts,
		prices:      make(map[string]float64),
	}
}

// SyncAccounts mirrors every simulated account into the shared store, so
// the composition pipeline sees the seeded state before the first fill.
func (g *Gateway) SyncAccounts(ctx context.Context) error {
	if g.sink == nil {
		return nil
	}
	g.mu.Lock()
	snapshots := make([]*model.Account, 0, len(g.accounts))
	for _, a := range g.accounts {
		snapshot := *a
		snapshot.Positions = append([]model.Position(nil), a.Positions...)
		snapshots = append(snapshots, &snapshot)
	}
	g.mu.Unlock()

	for _, snapshot := range snapshots {
		if err := g.sink.SaveAccount(ctx, snapshot); err != nil {
			return err
		}
	}
	return nil
}

// SetPrice seeds or pins a ticker's quote. Unseeded tickers start at 100.
func (g *Gateway) SetPrice(ticker string, price float64) {
	g.mu.Lock()
	g.prices[ticker] = price
	g.mu.Unlock()
}

// priceFor returns the ticker's quote after a tiny random walk (±0.1%),
// so repeated reads move like a market instead of a constant.
func (g *Gateway) priceFor(ticker string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	price, ok := g.prices[ticker]
	if !ok {
		price = 100
	}
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	price += price * pct
	if price < 0.01 {
		price = 0.01
	}
	g.prices[ticker] = price
	return price
}

// Run serves broker requests and order executions until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	sub, err := g.bus.Subscribe(ctx, bus.BrokerRequestChannel, bus.OrderChannel)
	if err != nil {
		return err
	}
	defer sub.Close()

	g.log.Info("paper gateway started",
		"accounts", len(g.accounts),
		"slippage_bps", g.slippageBps)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			switch msg.Channel {
			case bus.BrokerRequestChannel:
				g.handleRequest(ctx, msg.Payload)
			case bus.OrderChannel:
				g.handleOrder(ctx, msg.Payload)
			}
		}
	}
}

func (g *Gateway) handleRequest(ctx context.Context, raw []byte) {
	var req model.BrokerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		g.log.Warn("malformed broker request", "error", err)
		return
	}
	if g.metrics != nil {
		g.metrics.GatewayRequests.WithLabelValues(string(req.Type)).Inc()
	}

	var payload string
	var failure string
	switch req.Type {
	case model.ReqPing:
		// empty payload is the expected ping result

	case model.ReqGetPrice:
		raw, err := json.Marshal(model.PriceInfo{Price: g.priceFor(req.Payload)})
		if err != nil {
			failure = err.Error()
			break
		}
		payload = string(raw)

	case model.ReqGetDeposit:
		g.mu.Lock()
		account := g.accounts[req.Account]
		g.mu.Unlock()
		if account == nil {
			failure = fmt.Sprintf("unknown account %q", req.Account)
			break
		}
		raw, err := json.Marshal(account.Deposits)
		if err != nil {
			failure = err.Error()
			break
		}
		payload = string(raw)

	case model.ReqGetPositions:
		g.mu.Lock()
		account := g.accounts[req.Account]
		g.mu.Unlock()
		if account == nil {
			failure = fmt.Sprintf("unknown account %q", req.Account)
			break
		}
		raw, err := json.Marshal(account.Positions)
		if err != nil {
			failure = err.Error()
			break
		}
		payload = string(raw)

	case model.ReqGetAccounts:
		g.mu.Lock()
		accounts := make([]model.Account, 0, len(g.accounts))
		for _, a := range g.accounts {
			accounts = append(accounts, *a)
		}
		g.mu.Unlock()
		raw, err := json.Marshal(accounts)
		if err != nil {
			failure = err.Error()
			break
		}
		payload = string(raw)

	case model.ReqPlaceOrder:
		var order model.Order
		if err := json.Unmarshal([]byte(req.Payload), &order); err != nil {
			failure = fmt.Sprintf("malformed order payload: %v", err)
			break
		}
		result := g.execute(ctx, &order)
		raw, err := json.Marshal(result)
		if err != nil {
			failure = err.Error()
			break
		}
		payload = string(raw)

	default:
		failure = fmt.Sprintf("unsupported request type %q", req.Type)
	}

	if req.ResponseChannel == "" {
		return
	}
	resp := model.BrokerResponse{
		RequestID: req.ID,
		Success:   failure == "",
		Message:   failure,
		Payload:   payload,
	}
	respRaw, err := json.Marshal(resp)
	if err != nil {
		g.log.Error("marshal broker response", "error", err)
		return
	}
	if err := g.bus.Publish(ctx, req.ResponseChannel, respRaw); err != nil {
		g.log.Error("publish broker response", "channel", req.ResponseChannel, "error", err)
	}
}

func (g *Gateway) handleOrder(ctx context.Context, raw []byte) {
	var order model.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		g.log.Warn("malformed order", "error", err)
		return
	}
	result := g.execute(ctx, &order)
	resultRaw, err := json.Marshal(result)
	if err != nil {
		g.log.Error("marshal execution result", "error", err)
		return
	}
	if err := g.bus.Publish(ctx, bus.ExecutionChannel, resultRaw); err != nil {
		g.log.Error("publish execution result", "error", err)
	}
}

// execute fills or rejects one order against the simulated account.
func (g *Gateway) execute(ctx context.Context, order *model.Order) *model.OrderResult {
	fillPrice := order.Price
	if fillPrice <= 0 {
		fillPrice = g.priceFor(order.Ticker)
	}
	// Market orders cross the spread: buys fill above the quote, sells below.
	if g.slippageBps > 0 {
		slip := fillPrice * float64(g.slippageBps) / 10000
		if order.Action == model.ActionBuy {
			fillPrice += slip
		} else {
			fillPrice -= slip
		}
	}

	result, account := g.settle(order, fillPrice)

	if g.metrics != nil {
		if result.Success {
			g.metrics.GatewayFills.Inc()
		} else {
			g.metrics.GatewayRejects.Inc()
		}
	}
	if g.journal != nil {
		if err := g.journal.RecordExecution(ctx, order, result, fillPrice); err != nil {
			g.log.Error("journal write failed", "order_id", order.ID.String(), "error", err)
		}
	}
	if g.sink != nil && account != nil {
		if err := g.sink.SaveAccount(ctx, account); err != nil {
			g.log.Error("account sync failed", "account", account.Alias, "error", err)
		}
	}

	g.log.Info("order executed",
		"order_id", order.ID.String(),
		"account", order.AccountAlias,
		"ticker", order.Ticker,
		"action", order.Action,
		"qty", order.Qty,
		"fill_price", fillPrice,
		"success", result.Success,
		"message", result.Message)
	return result
}

// settle applies the fill to the account under the state lock and returns a
// copy of the post-fill account for mirroring.
func (g *Gateway) settle(order *model.Order, fillPrice float64) (*model.OrderResult, *model.Account) {
	g.mu.Lock()
	defer g.mu.Unlock()

	account := g.accounts[order.AccountAlias]
	if account == nil {
		return model.OrderFailure(order.ID.String(), fmt.Sprintf("unknown account %q", order.AccountAlias)), nil
	}
	if order.Qty <= 0 {
		return model.OrderFailure(order.ID.String(), "non-positive quantity"), nil
	}

	switch order.Action {
	case model.ActionBuy:
		cost := fillPrice * float64(order.Qty)
		if account.Deposits[order.Currency] < cost {
			return model.OrderFailure(order.ID.String(), "insufficient funds"), nil
		}
		account.Deposits[order.Currency] -= cost
		g.addPosition(account, order, fillPrice)

	case model.ActionSell:
		pos := findPosition(account, order.Ticker)
		if pos == nil || pos.Qty < order.Qty {
			return model.OrderFailure(order.ID.String(), "no holding to sell"), nil
		}
		account.Deposits[order.Currency] += fillPrice * float64(order.Qty)
		pos.Qty -= order.Qty
		pos.CurrentPrice = fillPrice
		if pos.Qty == 0 {
			removePosition(account, order.Ticker)
		}

	default:
		return model.OrderFailure(order.ID.String(), fmt.Sprintf("unknown action %q", order.Action)), nil
	}

	g.orderSeq++
	brokerID := fmt.Sprintf("PAPER-%d", g.orderSeq)
	snapshot := *account
	snapshot.Positions = append([]model.Position(nil), account.Positions...)
	return model.OrderSuccess(order.ID.String(), brokerID, "filled"), &snapshot
}

func (g *Gateway) addPosition(account *model.Account, order *model.Order, fillPrice float64) {
	if pos := findPosition(account, order.Ticker); pos != nil {
		total := float64(pos.Qty)*pos.AvgPrice + float64(order.Qty)*fillPrice
		pos.Qty += order.Qty
		pos.AvgPrice = total / float64(pos.Qty)
		pos.CurrentPrice = fillPrice
		return
	}
	account.Positions = append(account.Positions, model.Position{
		AccountAlias: account.Alias,
		Ticker:       order.Ticker,
		Currency:     order.Currency,
		Qty:          order.Qty,
		AvgPrice:     fillPrice,
		CurrentPrice: fillPrice,
		Exchange:     order.Exchange,
		Source:       "paper",
	})
}

func findPosition(account *model.Account, ticker string) *model.Position {
	for i := range account.Positions {
		if account.Positions[i].Ticker == ticker {
			return &account.Positions[i]
		}
	}
	return nil
}

func removePosition(account *model.Account, ticker string) {
	for i := range account.Positions {
		if account.Positions[i].Ticker == ticker {
			account.Positions = append(account.Positions[:i], account.Positions[i+1:]...)
			return
		}
	}
}
