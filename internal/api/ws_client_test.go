package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"binarybot/internal/domain"
)

// wsServer is a scripted trading API endpoint. Every received request is
// answered by respond; the test may also inject pushes on the live
// connection.
type wsServer struct {
	t       *testing.T
	srv     *httptest.Server
	respond func(req map[string]any) map[string]any

	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSServer(t *testing.T, respond func(req map[string]any) map[string]any) *wsServer {
	t.Helper()
	s := &wsServer{t: t, respond: respond}
	upgrader := websocket.Upgrader{}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		for {
			var req map[string]any
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if s.respond == nil {
				continue
			}
			// Answer concurrently so a slow scripted reply cannot stall
			// reads; responses may arrive out of request order.
			go func(req map[string]any) {
				resp := s.respond(req)
				if resp == nil {
					return
				}
				resp["req_id"] = req["req_id"]
				s.mu.Lock()
				_ = conn.WriteJSON(resp)
				s.mu.Unlock()
			}(req)
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return strings.Replace(s.srv.URL, "http", "ws", 1)
}

// push writes a server-initiated message outside any request cycle.
func (s *wsServer) push(payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		s.t.Fatal("no connection to push on")
	}
	if err := s.conn.WriteJSON(payload); err != nil {
		s.t.Fatalf("push: %v", err)
	}
}

// recordingEmitter collects emitted events for inspection.
type recordingEmitter struct {
	mu     sync.Mutex
	topics []string
	events map[string][]any
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{events: make(map[string][]any)}
}

func (e *recordingEmitter) Emit(topic string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.topics = append(e.topics, topic)
	e.events[topic] = append(e.events[topic], payload)
}

// waitFor polls until at least one event arrived on topic.
func (e *recordingEmitter) waitFor(t *testing.T, topic string) any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		e.mu.Lock()
		events := e.events[topic]
		e.mu.Unlock()
		if len(events) > 0 {
			return events[0]
		}
		if time.Now().After(deadline) {
			t.Fatalf("no event on %s", topic)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testConfig() *WSClientConfig {
	cfg := DefaultWSConfig()
	cfg.CallTimeout = 2 * time.Second
	return &cfg
}

func dialTestClient(t *testing.T, s *wsServer, emitter Emitter) *WSClient {
	t.Helper()
	client, err := NewWSClient(context.Background(), s.url(), emitter, testConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestWSClient_AuthorizeRoundTrip(t *testing.T) {
	s := newWSServer(t, func(req map[string]any) map[string]any {
		if req["authorize"] != "test-token" {
			t.Errorf("token = %v", req["authorize"])
		}
		return map[string]any{
			"msg_type": "authorize",
			"authorize": map[string]any{
				"loginid": "CR1001",
				// Prices arrive as strings on some responses.
				"balance":  "10000.00",
				"currency": "USD",
			},
		}
	})

	emitter := newRecordingEmitter()
	client := dialTestClient(t, s, emitter)

	result, err := client.Authorize(context.Background(), "test-token")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if result.LoginID != "CR1001" || result.Currency != "USD" || result.Balance != 10000 {
		t.Errorf("result = %+v", result)
	}

	if got := emitter.waitFor(t, TopicAuthorize); got.(*AuthorizeResult).LoginID != "CR1001" {
		t.Errorf("emitted authorize = %+v", got)
	}
}

func TestWSClient_ServerErrorBecomesAPIError(t *testing.T) {
	s := newWSServer(t, func(req map[string]any) map[string]any {
		return map[string]any{
			"msg_type": "authorize",
			"error": map[string]any{
				"code":    "InvalidToken",
				"message": "the token is invalid",
			},
		}
	})

	client := dialTestClient(t, s, nil)

	_, err := client.Authorize(context.Background(), "bad")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Code != CodeInvalidToken {
		t.Errorf("code = %q, want InvalidToken", apiErr.Code)
	}
}

func TestWSClient_CorrelatesOutOfOrderResponses(t *testing.T) {
	// The balance reply is delayed past the history reply, so the
	// responses arrive in reverse request order.
	s := newWSServer(t, func(req map[string]any) map[string]any {
		if _, ok := req["balance"]; ok {
			time.Sleep(50 * time.Millisecond)
			return map[string]any{
				"msg_type": "balance",
				"balance":  map[string]any{"balance": 500.5, "currency": "USD"},
			}
		}
		if _, ok := req["ticks_history"]; ok {
			return map[string]any{
				"msg_type": "history",
				"history": map[string]any{
					"times":  []int64{1000, 1001},
					"prices": []float64{100.1, 100.2},
				},
			}
		}
		return nil
	})

	client := dialTestClient(t, s, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var balance *BalanceUpdate
	var history *HistoryResult
	var balanceErr, historyErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		balance, balanceErr = client.Balance(ctx)
	}()
	go func() {
		defer wg.Done()
		history, historyErr = client.History(ctx, "R_100", HistoryRequest{End: "latest", Count: 2, Style: "ticks"})
	}()
	wg.Wait()

	if balanceErr != nil || historyErr != nil {
		t.Fatalf("errs = %v, %v", balanceErr, historyErr)
	}
	if balance.Balance != 500.5 {
		t.Errorf("balance = %v, want 500.5", balance.Balance)
	}
	if len(history.Ticks) != 2 || history.Ticks[1].Quote != 100.2 {
		t.Errorf("history = %+v", history)
	}
}

func TestWSClient_HistoryLengthMismatch(t *testing.T) {
	s := newWSServer(t, func(req map[string]any) map[string]any {
		return map[string]any{
			"msg_type": "history",
			"history": map[string]any{
				"times":  []int64{1000, 1001},
				"prices": []float64{100.1},
			},
		}
	})

	client := dialTestClient(t, s, nil)

	_, err := client.History(context.Background(), "R_100", HistoryRequest{Style: "ticks"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != CodeWrongResponse {
		t.Errorf("err = %v, want WrongResponse APIError", err)
	}
}

func TestWSClient_PushDispatch(t *testing.T) {
	s := newWSServer(t, func(req map[string]any) map[string]any {
		return map[string]any{
			"msg_type": "balance",
			"balance":  map[string]any{"balance": 100, "currency": "USD"},
		}
	})

	emitter := newRecordingEmitter()
	client := dialTestClient(t, s, emitter)

	// One call first so the server has a live connection.
	if _, err := client.Balance(context.Background()); err != nil {
		t.Fatalf("balance: %v", err)
	}

	s.push(map[string]any{
		"msg_type": "tick",
		"tick": map[string]any{
			"symbol":   "R_100",
			"epoch":    2000,
			"quote":    "101.5",
			"pip_size": 2,
		},
	})
	s.push(map[string]any{
		"msg_type": "proposal",
		"proposal": map[string]any{
			"id":        "sub-1",
			"ask_price": 1.01,
			"payout":    1.95,
		},
	})

	tick := emitter.waitFor(t, TopicTick).(domain.Tick)
	if tick.Symbol != "R_100" || tick.Quote != 101.5 || tick.PipSize != 2 {
		t.Errorf("tick = %+v", tick)
	}

	proposal := emitter.waitFor(t, TopicProposal).(*domain.Proposal)
	if proposal.ID != "sub-1" || proposal.AskPrice != 1.01 {
		t.Errorf("proposal = %+v", proposal)
	}
}

func TestWSClient_OpenContractSnapshotEmitted(t *testing.T) {
	s := newWSServer(t, func(req map[string]any) map[string]any {
		if _, ok := req["proposal_open_contract"]; !ok {
			return nil
		}
		return map[string]any{
			"msg_type": "proposal_open_contract",
			"proposal_open_contract": map[string]any{
				"contract_id": 1001,
				"buy_price":   "1.00",
				"is_sold":     0,
				"status":      "open",
			},
		}
	})

	emitter := newRecordingEmitter()
	client := dialTestClient(t, s, emitter)

	if err := client.SubscribeOpenContract(context.Background(), 1001); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	contract := emitter.waitFor(t, TopicOpenContract).(*domain.OpenContract)
	if contract.ContractID != 1001 || contract.BuyPrice != 1.0 || contract.IsSold {
		t.Errorf("contract = %+v", contract)
	}
}

func TestWSClient_CallAfterClose(t *testing.T) {
	s := newWSServer(t, nil)
	client, err := NewWSClient(context.Background(), s.url(), nil, testConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if _, err := client.Balance(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}
