package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mr-tron/base58"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingNode serves block hashes derived from a call counter and can be
// switched into a failing mode.
type countingNode struct {
	Node
	calls atomic.Int32
	fail  atomic.Bool
}

func (c *countingNode) LatestBlockHash(ctx context.Context) ([]byte, error) {
	n := c.calls.Add(1)
	if c.fail.Load() {
		return nil, errors.New("node down")
	}
	hash := make([]byte, 32)
	hash[0] = byte(n)
	return hash, nil
}

func TestBlockAnchorCachesHash(t *testing.T) {
	node := &countingNode{}
	anchor := NewBlockAnchor(node, time.Hour, discardLogger())

	first, err := anchor.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	second, err := anchor.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first[0] != second[0] {
		t.Error("fresh anchor was refetched")
	}
	if got := node.calls.Load(); got != 1 {
		t.Errorf("node saw %d fetches, want 1", got)
	}
}

func TestBlockAnchorRefreshesWhenStale(t *testing.T) {
	node := &countingNode{}
	anchor := NewBlockAnchor(node, 30*time.Millisecond, discardLogger())

	first, _ := anchor.Get(context.Background())
	time.Sleep(50 * time.Millisecond)
	second, err := anchor.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first[0] == second[0] {
		t.Error("stale anchor was not refreshed")
	}
}

func TestBlockAnchorServesStaleOnFailure(t *testing.T) {
	node := &countingNode{}
	anchor := NewBlockAnchor(node, 20*time.Millisecond, discardLogger())

	first, _ := anchor.Get(context.Background())
	node.fail.Store(true)
	time.Sleep(40 * time.Millisecond)

	got, err := anchor.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v, want stale hash", err)
	}
	if got[0] != first[0] {
		t.Error("expected the stale hash to be served on refresh failure")
	}
}

func TestBlockAnchorErrorsWithNoHash(t *testing.T) {
	node := &countingNode{}
	node.fail.Store(true)
	anchor := NewBlockAnchor(node, time.Second, discardLogger())

	if _, err := anchor.Get(context.Background()); err == nil {
		t.Error("Get() error = nil with no cached hash, want error")
	}
}

func TestBlockAnchorConcurrentAccess(t *testing.T) {
	raw := make([]byte, 32)
	raw[0] = 7
	client := &fakeClient{call: func(method string, params, result any) error {
		return json.Unmarshal([]byte(fmt.Sprintf(`{"header":{"hash":%q}}`, base58.Encode(raw))), result)
	}}
	anchor := NewBlockAnchor(NewHTTPNode(client, nil, nil), time.Hour, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hash, err := anchor.Get(context.Background())
				if err != nil || hash[0] != 7 {
					t.Errorf("Get() = %v, %v", hash, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
