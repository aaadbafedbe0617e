package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"investly/internal/domain"
)

var fastPolicy = RetryPolicy{MaxAttempts: 6, Interval: time.Millisecond}

func testConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Poll:          fastPolicy,
		Extract:       RetryPolicy{MaxAttempts: 3, Interval: time.Millisecond},
		Cancel:        RetryPolicy{MaxAttempts: 4, Interval: time.Millisecond},
		MaxToolRounds: 3,
		MaxParallel:   2,
	}
}

type fakeRun struct {
	run       domain.Run
	polls     int
	submitted [][]domain.ToolOutput
}

type fakeThread struct {
	runs     []*fakeRun
	messages []domain.ThreadMessage // oldest first
}

// fakeProvider models the Assistants API, including its rule that a thread
// holds at most one active run. advance moves an active run forward on
// every ListRuns.
type fakeProvider struct {
	mu      sync.Mutex
	threads map[string]*fakeThread
	seq     int

	advance func(p *fakeProvider, threadID string, r *fakeRun)

	cancelErr      error
	cancelSticks   bool
	submitErr      error
	submitConflict bool // apply the outputs, then answer 409 as if a duplicate won
	submitStatus   domain.RunStatus
	listRunsErrs   int

	onListMessages func(p *fakeProvider, threadID string, call int)
	messageCalls   int

	createdThreads int
	createdRuns    int
	cancelCalls    int
	violations     int
	maxActive      int
}

func newFakeProvider(advance func(p *fakeProvider, threadID string, r *fakeRun)) *fakeProvider {
	return &fakeProvider{threads: make(map[string]*fakeThread), advance: advance}
}

func (p *fakeProvider) nextID(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s_%d", prefix, p.seq)
}

func (p *fakeProvider) activeRuns(th *fakeThread) int {
	n := 0
	for _, r := range th.runs {
		if r.run.IsActive() {
			n++
		}
	}
	return n
}

func (p *fakeProvider) observe(th *fakeThread) {
	if n := p.activeRuns(th); n > p.maxActive {
		p.maxActive = n
	}
}

// seedRun places a run on a thread directly, bypassing the invariant check
func (p *fakeProvider) seedRun(threadID string, status domain.RunStatus) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	th, ok := p.threads[threadID]
	if !ok {
		th = &fakeThread{}
		p.threads[threadID] = th
	}
	id := p.nextID("run")
	th.runs = append(th.runs, &fakeRun{run: domain.Run{ID: id, ThreadID: threadID, Status: status}})
	return id
}

func (p *fakeProvider) reply(threadID, runID, text string) {
	th := p.threads[threadID]
	th.messages = append(th.messages, domain.ThreadMessage{
		ID:       p.nextID("msg"),
		Role:     domain.RoleAssistant,
		RunID:    runID,
		Contents: []domain.MessageContent{{Type: "text", Text: text}},
	})
}

func (p *fakeProvider) CreateThread(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID("thread")
	p.threads[id] = &fakeThread{}
	p.createdThreads++
	return id, nil
}

func (p *fakeProvider) AddMessage(ctx context.Context, threadID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	th, ok := p.threads[threadID]
	if !ok {
		return &domain.Error{Kind: domain.KindProviderRejected, HTTPStatus: 404, Message: "no thread"}
	}
	if p.activeRuns(th) > 0 {
		return &domain.Error{Kind: domain.KindProviderRejected, HTTPStatus: 400, Message: "Can't add messages while a run is active"}
	}
	th.messages = append(th.messages, domain.ThreadMessage{
		ID:       p.nextID("msg"),
		Role:     domain.RoleUser,
		Contents: []domain.MessageContent{{Type: "text", Text: text}},
	})
	return nil
}

func (p *fakeProvider) CreateRun(ctx context.Context, threadID string, tools []domain.ToolDefinition) (domain.Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	th, ok := p.threads[threadID]
	if !ok {
		return domain.Run{}, &domain.Error{Kind: domain.KindProviderRejected, HTTPStatus: 404, Message: "no thread"}
	}
	if p.activeRuns(th) > 0 {
		p.violations++
		return domain.Run{}, &domain.Error{Kind: domain.KindProviderRejected, HTTPStatus: 400, Message: "thread already has an active run"}
	}
	r := &fakeRun{run: domain.Run{ID: p.nextID("run"), ThreadID: threadID, Status: domain.RunQueued}}
	th.runs = append(th.runs, r)
	p.createdRuns++
	p.observe(th)
	return r.run, nil
}

func (p *fakeProvider) ListRuns(ctx context.Context, threadID string) ([]domain.Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listRunsErrs > 0 {
		p.listRunsErrs--
		return nil, domain.NewError(domain.KindNetworkFailure, "connection reset", nil)
	}
	th := p.threads[threadID]
	if th == nil {
		return nil, nil
	}

	out := make([]domain.Run, 0, len(th.runs))
	for i := len(th.runs) - 1; i >= 0; i-- {
		r := th.runs[i]
		if r.run.Status == domain.RunCancelling && !p.cancelSticks {
			r.run.Status = domain.RunCancelled
		} else if r.run.IsActive() && r.run.Status != domain.RunCancelling && p.advance != nil {
			r.polls++
			p.advance(p, threadID, r)
		}
		out = append(out, r.run)
	}
	p.observe(th)
	return out, nil
}

func (p *fakeProvider) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (domain.Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		err := p.submitErr
		p.submitErr = nil
		return domain.Run{}, err
	}
	for _, r := range p.threads[threadID].runs {
		if r.run.ID != runID {
			continue
		}
		if r.run.Status != domain.RunRequiresAction {
			return domain.Run{}, &domain.Error{Kind: domain.KindProviderRejected, HTTPStatus: 409, Message: "run does not accept tool outputs"}
		}
		r.submitted = append(r.submitted, outputs)
		r.run.ToolCalls = nil
		r.run.Status = domain.RunInProgress
		if p.submitStatus != "" {
			r.run.Status = p.submitStatus
		}
		if p.submitConflict {
			p.submitConflict = false
			return domain.Run{}, &domain.Error{Kind: domain.KindProviderRejected, HTTPStatus: 409, Message: "tool outputs already submitted"}
		}
		return r.run, nil
	}
	return domain.Run{}, &domain.Error{Kind: domain.KindProviderRejected, HTTPStatus: 404, Message: "no run"}
}

func (p *fakeProvider) CancelRun(ctx context.Context, threadID, runID string) (domain.Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelCalls++
	if p.cancelErr != nil {
		return domain.Run{}, p.cancelErr
	}
	for _, r := range p.threads[threadID].runs {
		if r.run.ID == runID {
			if !r.run.IsActive() {
				return domain.Run{}, &domain.Error{Kind: domain.KindProviderRejected, HTTPStatus: 409, Message: "run already finished"}
			}
			r.run.Status = domain.RunCancelling
			return r.run, nil
		}
	}
	return domain.Run{}, &domain.Error{Kind: domain.KindProviderRejected, HTTPStatus: 404, Message: "no run"}
}

func (p *fakeProvider) ListMessages(ctx context.Context, threadID string) ([]domain.ThreadMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messageCalls++
	if p.onListMessages != nil {
		p.onListMessages(p, threadID, p.messageCalls)
	}
	th := p.threads[threadID]
	out := make([]domain.ThreadMessage, 0, len(th.messages))
	for i := len(th.messages) - 1; i >= 0; i-- {
		out = append(out, th.messages[i])
	}
	return out, nil
}

func (p *fakeProvider) run(threadID, runID string) *fakeRun {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.threads[threadID].runs {
		if r.run.ID == runID {
			return r
		}
	}
	return nil
}

func (p *fakeProvider) lastRun(threadID string) *fakeRun {
	p.mu.Lock()
	defer p.mu.Unlock()
	th := p.threads[threadID]
	if th == nil || len(th.runs) == 0 {
		return nil
	}
	return th.runs[len(th.runs)-1]
}

// memStore keeps message records in memory
type memStore struct {
	mu      sync.Mutex
	records []domain.MessageRecord
	saveErr error
}

func (s *memStore) Save(ctx context.Context, record *domain.MessageRecord) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return uuid.Nil, s.saveErr
	}
	record.ID = uuid.New()
	s.records = append(s.records, *record)
	return record.ID, nil
}

func (s *memStore) FindLatestOpenThread(ctx context.Context, scope string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Scope == scope && s.records[i].ThreadID != "" {
			return s.records[i].ThreadID, true, nil
		}
	}
	return "", false, nil
}

// fakeGateway serves canned exchange results
type fakeGateway struct {
	mu       sync.Mutex
	calls    []string
	snapshot domain.BalanceSnapshot
	orderErr error
	trades   []domain.Trade
	lastReq  domain.WidgetRequest
	lastArgs []any
}

func (g *fakeGateway) record(name string, args ...any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, name)
	g.lastArgs = args
}

func (g *fakeGateway) GetBalance(ctx context.Context) (domain.BalanceSnapshot, error) {
	g.record("GetBalance")
	return g.snapshot, nil
}

func (g *fakeGateway) PlaceOrder(ctx context.Context, symbol string, side domain.Side, amount decimal.Decimal, currency string) (domain.OrderResult, error) {
	g.record("PlaceOrder", symbol, side, amount.String(), currency)
	if g.orderErr != nil {
		return domain.OrderResult{}, g.orderErr
	}
	return domain.OrderResult{Symbol: symbol + "USDT", OrderID: 99, Status: "FILLED", Side: string(side)}, nil
}

func (g *fakeGateway) CancelOrder(ctx context.Context, orderID int64, symbol string) (domain.CancelResult, error) {
	g.record("CancelOrder", orderID, symbol)
	return domain.CancelResult{Symbol: symbol, OrderID: orderID, Status: "CANCELED"}, nil
}

func (g *fakeGateway) FetchTradeHistory(ctx context.Context, symbol string, limit int) ([]domain.Trade, error) {
	g.record("FetchTradeHistory", symbol, limit)
	return g.trades, nil
}

func (g *fakeGateway) GetProfitLoss(ctx context.Context, symbol string) (domain.ProfitLoss, error) {
	g.record("GetProfitLoss", symbol)
	return domain.ProfitLoss{Symbol: symbol, ProfitLoss: decimal.NewFromInt(10), Window: 10}, nil
}

func (g *fakeGateway) GetTopMovers(ctx context.Context, timeframe string, limit int) ([]domain.Mover, error) {
	g.record("GetTopMovers", timeframe, limit)
	return []domain.Mover{{Symbol: "DOGEUSDT", PriceChangePercent: decimal.NewFromInt(12)}}, nil
}

func (g *fakeGateway) CreateWidget(ctx context.Context, req domain.WidgetRequest) (domain.Widget, error) {
	g.record("CreateWidget")
	g.mu.Lock()
	g.lastReq = req
	g.mu.Unlock()
	return domain.Widget{Type: req.Type, Assets: req.Assets, Status: "success"}, nil
}

func (g *fakeGateway) called() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := append([]string(nil), g.calls...)
	sort.Strings(out)
	return out
}

type fakeAdvisor struct {
	prompt string
}

func (a *fakeAdvisor) Advise(ctx context.Context, prompt string) (string, error) {
	a.prompt = prompt
	return "Keep a diversified portfolio.", nil
}

type recordingMetrics struct {
	mu    sync.Mutex
	tools map[string]int
	runs  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{tools: map[string]int{}, runs: map[string]int{}}
}

func (m *recordingMetrics) ToolCall(tool, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools[tool+":"+result]++
}

func (m *recordingMetrics) RunFinished(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[outcome]++
}
