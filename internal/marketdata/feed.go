// Package marketdata maintains one live WebSocket connection per symbol to
// the exchange's public ticker/candle feed (§4.1), reconnecting with
// exponential backoff and degrading after repeated failures. Grounded on
// the pack's outbound gorilla/websocket dial idiom (yohannesjx-sniperterminal's
// hub.go pinger/reader loop, adapted from server- to client-side) and on
// the teacher's tick-driven poll loop in live.go.
package marketdata

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chidi150c/perpengine/internal/exchange"
	"github.com/chidi150c/perpengine/internal/metrics"
	"github.com/chidi150c/perpengine/internal/types"
)

const (
	initialBackoff  = 2 * time.Second
	maxBackoff      = 30 * time.Second
	maxFailures     = 6
	keepaliveEvery  = 20 * time.Second
	staleThreshold  = 10 * time.Second
)

// State is the feed's connectivity state.
type State int

const (
	StateConnecting State = iota
	StateLive
	StateDegraded
)

// TickHandle cancels a tick subscription. Cold-start subscribers only see
// events published after they subscribe (§9).
type TickHandle func()

// Feed maintains the ticker/candle1m stream for one symbol.
type Feed struct {
	symbol   string
	wsURL    string
	normalize func(string) string
	rest     exchange.Client // REST fallback when degraded (§4.1)
	log      zerolog.Logger

	mu          sync.RWMutex
	latest      types.Tick
	state       State
	subscribers map[int]chan types.Tick
	nextSubID   int

	stop chan struct{}
	done chan struct{}
}

// New builds a Feed for symbol. normalize maps the internal symbol spelling
// to the venue's wire format (left to the collaborator per §9's open
// question on feed-URL/symbol-normalization ownership).
func New(symbol, wsURL string, normalize func(string) string, rest exchange.Client, log zerolog.Logger) *Feed {
	if normalize == nil {
		normalize = func(s string) string { return s }
	}
	return &Feed{
		symbol:      symbol,
		wsURL:       wsURL,
		normalize:   normalize,
		rest:        rest,
		log:         log.With().Str("component", "marketdata").Str("symbol", symbol).Logger(),
		subscribers: map[int]chan types.Tick{},
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start begins the connect/read/reconnect loop. Non-blocking.
func (f *Feed) Start(ctx context.Context) {
	go f.run(ctx)
}

// Stop requests shutdown and waits up to 2s for the loop to exit (§5).
func (f *Feed) Stop() {
	close(f.stop)
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
	}
}

// Latest returns the most recent tick. Callers must check staleness
// themselves; a stale tick from a Degraded feed should trigger a REST
// fallback (§4.1).
func (f *Feed) Latest() types.Tick {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest
}

// State reports the current connectivity state.
func (f *Feed) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Subscribe returns a channel of ticks published from this point forward,
// and a cancellation handle.
func (f *Feed) Subscribe() (<-chan types.Tick, TickHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSubID
	f.nextSubID++
	ch := make(chan types.Tick, 32)
	f.subscribers[id] = ch
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if c, ok := f.subscribers[id]; ok {
			delete(f.subscribers, id)
			close(c)
		}
	}
}

func (f *Feed) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	degraded := 0.0
	if s == StateDegraded {
		degraded = 1.0
	}
	metrics.FeedDegraded.WithLabelValues(f.symbol).Set(degraded)
}

func (f *Feed) publish(t types.Tick) {
	f.mu.Lock()
	if f.latest.LastPrice == t.LastPrice && !f.latest.Timestamp.IsZero() {
		f.mu.Unlock()
		return // duplicate-price suppression (§4.1)
	}
	f.latest = t
	subs := make([]chan types.Tick, 0, len(f.subscribers))
	for _, ch := range f.subscribers {
		subs = append(subs, ch)
	}
	f.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- t:
		default: // slow subscriber; drop rather than block the reader loop
		}
	}
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)
	backoff := initialBackoff
	failures := 0

	for {
		select {
		case <-f.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		f.setState(StateConnecting)
		if err := f.connectAndRead(ctx); err != nil {
			if f.State() == StateLive {
				// the link was up before it dropped: start a new failure streak
				failures = 0
				backoff = initialBackoff
			}
			failures++
			metrics.FeedReconnects.WithLabelValues(f.symbol).Inc()
			f.log.Warn().Err(err).Int("failures", failures).Msg("feed disconnected, backing off")
			if failures >= maxFailures {
				f.setState(StateDegraded)
				f.log.Warn().Msg("link severed: feed degraded after consecutive failures")
			}
			select {
			case <-time.After(backoff):
			case <-f.stop:
				return
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// clean read loop exit (stop requested) resets backoff state
		failures = 0
		backoff = initialBackoff
	}
}

type subscribeMsg struct {
	Op   string        `json:"op"`
	Args []channelArgs `json:"args"`
}

type channelArgs struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type pushFrame struct {
	Action string `json:"action"`
	Arg    struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		Last   string `json:"last"`
		BidPx  string `json:"bidPx"`
		AskPx  string `json:"askPx"`
		Vol24h string `json:"vol24h"`
		Ts     string `json:"ts"`
	} `json:"data"`
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	instID := f.normalize(f.symbol)
	sub := subscribeMsg{Op: "subscribe", Args: []channelArgs{
		{Channel: "ticker", InstID: instID},
		{Channel: "candle1m", InstID: instID},
	}}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	f.setState(StateLive)
	f.log.Info().Msg("feed connected and subscribed")

	keepalive := time.NewTicker(keepaliveEvery)
	defer keepalive.Stop()

	readErr := make(chan error, 1)
	msgs := make(chan []byte, 64)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- data:
			default:
			}
		}
	}()

	for {
		select {
		case <-f.stop:
			return nil
		case <-ctx.Done():
			return nil
		case <-keepalive.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				return err
			}
		case err := <-readErr:
			return err
		case data := <-msgs:
			f.handleFrame(data, conn)
		}
	}
}

func (f *Feed) handleFrame(data []byte, conn *websocket.Conn) {
	if string(data) == "ping" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("pong"))
		return
	}
	if string(data) == "pong" {
		return
	}
	var frame pushFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return // parser errors on a frame are silently dropped (§4.1)
	}
	if frame.Action != "push" || len(frame.Data) == 0 {
		return
	}
	if frame.Arg.Channel != "ticker" && frame.Arg.Channel != "candle1m" {
		return
	}
	d := frame.Data[0]
	last := parseFloat(d.Last)
	if last <= 0 {
		return
	}
	tick := types.Tick{
		Symbol:    f.symbol,
		LastPrice: last,
		Bid:       parseFloat(d.BidPx),
		Ask:       parseFloat(d.AskPx),
		Volume24h: parseFloat(d.Vol24h),
		Timestamp: time.Now().UTC(),
	}
	if !tick.Valid() {
		return
	}
	f.publish(tick)
}

// IsStale reports whether Latest() is old enough that callers should use the
// REST fallback instead.
func (f *Feed) IsStale(now time.Time) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest.Timestamp.IsZero() || now.Sub(f.latest.Timestamp) > staleThreshold
}

// FetchFallback asks the REST client for a single fresh tick, for use when
// the feed is Degraded (§4.1).
func (f *Feed) FetchFallback(ctx context.Context) (types.Tick, error) {
	t, err := f.rest.GetTicker(ctx, f.symbol)
	if err != nil {
		return types.Tick{}, err
	}
	return types.Tick{Symbol: f.symbol, LastPrice: t.Last, Bid: t.Bid, Ask: t.Ask, Timestamp: time.Now().UTC()}, nil
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
