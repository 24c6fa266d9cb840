package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"payment-api/pkg/logging"
)

// ReplayGuard remembers notifications that were already acknowledged with
// "success" so re-deliveries can be answered without touching the store.
type ReplayGuard interface {
	Seen(ctx context.Context, fingerprint string) (bool, error)
	Remember(ctx context.Context, fingerprint string) error
}

// NotificationFingerprint 生成通知的唯一标识符
// Every field, the signature included, takes part in the hash.
func NotificationFingerprint(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
		b.WriteByte('\n')
	}
	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

// MemoryReplayGuard 重放防护 (in-process)
type MemoryReplayGuard struct {
	processed       map[string]time.Time
	mutex           sync.RWMutex
	cleanupInterval time.Duration
	ttl             time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewMemoryReplayGuard creates the guard and starts its cleanup goroutine.
func NewMemoryReplayGuard(ttl time.Duration) *MemoryReplayGuard {
	interval := time.Hour
	if ttl < interval {
		interval = ttl
	}
	g := &MemoryReplayGuard{
		processed:       make(map[string]time.Time),
		cleanupInterval: interval,
		ttl:             ttl,
		stopCleanup:     make(chan struct{}),
	}

	go g.startCleanupRoutine()

	return g
}

func (g *MemoryReplayGuard) Seen(ctx context.Context, fingerprint string) (bool, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	at, ok := g.processed[fingerprint]
	if !ok {
		return false, nil
	}
	if time.Since(at) > g.ttl {
		return false, nil
	}
	logging.Infof("Replay detected - fingerprint: %s, acknowledged at: %v", fingerprint, at)
	return true, nil
}

func (g *MemoryReplayGuard) Remember(ctx context.Context, fingerprint string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.processed[fingerprint] = time.Now()
	return nil
}

func (g *MemoryReplayGuard) startCleanupRoutine() {
	ticker := time.NewTicker(g.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.cleanup()
		case <-g.stopCleanup:
			return
		}
	}
}

// cleanup 清理过期的通知记录
func (g *MemoryReplayGuard) cleanup() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	now := time.Now()
	initial := len(g.processed)
	for fp, at := range g.processed {
		if now.Sub(at) > g.ttl {
			delete(g.processed, fp)
		}
	}

	if removed := initial - len(g.processed); removed > 0 {
		logging.Infof("Replay guard cleanup: removed %d expired notifications, remaining: %d", removed, len(g.processed))
	}
}

// Stats returns counters for the health endpoint.
func (g *MemoryReplayGuard) Stats() map[string]interface{} {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return map[string]interface{}{
		"backend":          "memory",
		"total_processed":  len(g.processed),
		"cleanup_interval": g.cleanupInterval.String(),
		"notification_ttl": g.ttl.String(),
	}
}

// Stop 停止清理协程
func (g *MemoryReplayGuard) Stop() {
	g.stopOnce.Do(func() { close(g.stopCleanup) })
}
