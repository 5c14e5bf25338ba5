package marketdata

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/perpengine/internal/logging"
	"github.com/chidi150c/perpengine/internal/types"
)

func TestParseFloat_InvalidAndEmptyAreZero(t *testing.T) {
	assert.Equal(t, 0.0, parseFloat(""))
	assert.Equal(t, 0.0, parseFloat("not-a-number"))
	assert.Equal(t, 123.45, parseFloat("123.45"))
}

func TestPublish_SuppressesDuplicateLastPrice(t *testing.T) {
	log := logging.New("error", io.Discard)
	f := New("BTC-USDT-SWAP", "wss://example", nil, nil, log)

	ch, cancel := f.Subscribe()
	defer cancel()

	tick := types.Tick{Symbol: "BTC-USDT-SWAP", LastPrice: 100, Timestamp: time.Now().UTC()}
	f.publish(tick)

	select {
	case got := <-ch:
		assert.Equal(t, 100.0, got.LastPrice)
	default:
		t.Fatal("expected first publish to reach subscriber")
	}

	f.publish(tick) // same LastPrice, should be suppressed
	select {
	case <-ch:
		t.Fatal("duplicate-price tick should not be republished")
	default:
	}
}

func TestSubscribe_ColdStartOnlySeesFutureTicks(t *testing.T) {
	log := logging.New("error", io.Discard)
	f := New("BTC-USDT-SWAP", "wss://example", nil, nil, log)

	f.publish(types.Tick{Symbol: "BTC-USDT-SWAP", LastPrice: 100, Timestamp: time.Now().UTC()})

	ch, cancel := f.Subscribe()
	defer cancel()

	select {
	case <-ch:
		t.Fatal("subscriber should not see ticks published before it subscribed")
	default:
	}

	f.publish(types.Tick{Symbol: "BTC-USDT-SWAP", LastPrice: 101, Timestamp: time.Now().UTC()})
	got, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, 101.0, got.LastPrice)
}
