package nvcf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/config"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/metrics"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/redis"
)

// inventoryKey is the shared cache key for the serialized inventory.
const inventoryKey = "nvcf:functions"

// Inventory caches the deployed function list. Lookups hit a process-local
// snapshot first, then the shared Redis cache when configured, then the
// control plane. Concurrent refreshes collapse into one upstream call.
type Inventory struct {
	client   domain.ComputeClient
	settings *config.Store
	cache    *redis.Client
	clock    clockwork.Clock
	group    singleflight.Group

	mu        sync.RWMutex
	functions map[domain.FunctionRef]domain.Function
	fetchedAt time.Time
}

// NewInventory creates an inventory cache. cache may be nil when no shared
// cache is configured.
func NewInventory(client domain.ComputeClient, settings *config.Store, cache *redis.Client, clock clockwork.Clock) *Inventory {
	return &Inventory{
		client:   client,
		settings: settings,
		cache:    cache,
		clock:    clock,
	}
}

// Functions returns the current inventory snapshot, refreshing it when the
// cache TTL has passed.
func (i *Inventory) Functions(ctx context.Context) (map[domain.FunctionRef]domain.Function, error) {
	ttl := i.settings.Current().NvcfCacheTTLDuration()

	i.mu.RLock()
	functions, fetchedAt := i.functions, i.fetchedAt
	i.mu.RUnlock()

	if functions != nil && i.clock.Since(fetchedAt) < ttl {
		metrics.InventoryCacheHits.WithLabelValues("memory").Inc()
		return functions, nil
	}

	result, err, _ := i.group.Do(inventoryKey, func() (any, error) {
		return i.refresh(ctx, ttl)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[domain.FunctionRef]domain.Function), nil
}

// StatusFor resolves the deployment status of one function pair. Unknown
// pairs and refresh failures both report UNKNOWN.
func (i *Inventory) StatusFor(ctx context.Context, ref domain.FunctionRef) domain.FunctionStatus {
	functions, err := i.Functions(ctx)
	if err != nil {
		slog.Error("Failed to get function inventory", "error", err)
		return domain.FunctionStatusUnknown
	}
	if function, ok := functions[ref]; ok {
		return function.Status
	}
	return domain.FunctionStatusUnknown
}

func (i *Inventory) refresh(ctx context.Context, ttl time.Duration) (map[domain.FunctionRef]domain.Function, error) {
	if functions := i.loadShared(ctx); functions != nil {
		metrics.InventoryCacheHits.WithLabelValues("redis").Inc()
		i.store(functions)
		return functions, nil
	}

	slog.Info("Getting fresh status of deployed functions")
	functions, err := i.client.ListFunctions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh function inventory: %w", err)
	}
	metrics.InventoryCacheHits.WithLabelValues("upstream").Inc()

	i.store(functions)
	i.storeShared(ctx, functions, ttl)
	return functions, nil
}

func (i *Inventory) store(functions map[domain.FunctionRef]domain.Function) {
	i.mu.Lock()
	i.functions = functions
	i.fetchedAt = i.clock.Now()
	i.mu.Unlock()
}

// inventoryRecord is the shared cache wire form of one function.
type inventoryRecord struct {
	ID        string `json:"id"`
	VersionID string `json:"version_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
}

func (i *Inventory) loadShared(ctx context.Context) map[domain.FunctionRef]domain.Function {
	if i.cache == nil {
		return nil
	}

	payload, err := i.cache.Underlying().Get(ctx, inventoryKey).Result()
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	if err != nil {
		slog.Warn("Failed to read function inventory from shared cache", "error", err)
		return nil
	}

	var records []inventoryRecord
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		slog.Warn("Discarding malformed shared inventory cache entry", "error", err)
		return nil
	}

	functions := make(map[domain.FunctionRef]domain.Function, len(records))
	for _, record := range records {
		var ref domain.FunctionRef
		if err := ref.FunctionID.UnmarshalText([]byte(record.ID)); err != nil {
			continue
		}
		if err := ref.FunctionVersionID.UnmarshalText([]byte(record.VersionID)); err != nil {
			continue
		}
		functions[ref] = domain.Function{
			Ref:    ref,
			Name:   record.Name,
			Status: domain.FunctionStatus(record.Status),
		}
	}
	return functions
}

func (i *Inventory) storeShared(ctx context.Context, functions map[domain.FunctionRef]domain.Function, ttl time.Duration) {
	if i.cache == nil {
		return
	}

	records := make([]inventoryRecord, 0, len(functions))
	for ref, function := range functions {
		records = append(records, inventoryRecord{
			ID:        ref.FunctionID.String(),
			VersionID: ref.FunctionVersionID.String(),
			Name:      function.Name,
			Status:    string(function.Status),
		})
	}

	payload, err := json.Marshal(records)
	if err != nil {
		slog.Warn("Failed to serialize function inventory", "error", err)
		return
	}
	if err := i.cache.Underlying().Set(ctx, inventoryKey, payload, ttl).Err(); err != nil {
		slog.Warn("Failed to write function inventory to shared cache", "error", err)
	}
}
