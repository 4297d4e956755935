package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"pingpay/internal/logger"
)

type status struct {
	ChainHead uint64    `json:"chain_head"`
	StoreOK   bool      `json:"store_ok"`
	CheckedAt time.Time `json:"checked_at"`
}

var (
	isReady     int32
	current     status
	statusMutex sync.RWMutex
)

func SetReady(ready bool) {
	if ready {
		atomic.StoreInt32(&isReady, 1)
	} else {
		atomic.StoreInt32(&isReady, 0)
	}
}

func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	statusMutex.RLock()
	defer statusMutex.RUnlock()

	if atomic.LoadInt32(&isReady) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Not Ready"))

		return
	}

	response := make(map[string]interface{})
	response["status"] = "Ready"
	response["details"] = current

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// Watch periodically refreshes the readiness details: latest chain
// head and store liveness. Runs until ctx is done.
func Watch(ctx context.Context, head func(context.Context) (uint64, error), ping func() error) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				h, err := head(ctx)
				if err != nil {
					logger.GetLogger().Error().Err(err).Msg("Error getting latest block")
				}
				storeOK := ping() == nil
				update(h, storeOK)
				time.Sleep(10 * time.Second)
			}
		}
	}()
}

func update(head uint64, storeOK bool) {
	statusMutex.Lock()
	defer statusMutex.Unlock()
	current = status{ChainHead: head, StoreOK: storeOK, CheckedAt: time.Now().UTC()}
}
