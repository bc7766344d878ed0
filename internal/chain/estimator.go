// Package chain estimates the current weekly reward pool from on-chain
// purchase activity. The estimate walks the chain once per cache window:
// a binary search maps the competition start instant to a block number and
// a chunked, fault-tolerant log scan sums the purchase event values across
// the block range.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/wallet-cards/internal/logging"
	"github.com/wallet-cards/internal/types"
)

// bpsDenominator is the basis-points scale (10000 bps = 100%).
var bpsDenominator = big.NewInt(10000)

// EthBackend is the subset of the JSON-RPC client the estimator needs.
// *ethclient.Client satisfies it.
type EthBackend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
}

// WindowSource provides the current weekly competition window.
type WindowSource interface {
	CurrentWindow(ctx context.Context, wallet string) (*types.WeeklyWindow, error)
}

// Config holds the estimator's chain parameters.
type Config struct {
	// PurchaseAddress is the contract emitting purchase events. Optional;
	// an empty address queries logs unfiltered by address.
	PurchaseAddress common.Address
	// PurchaseTopic is the event signature topic to sum.
	PurchaseTopic common.Hash
	// ShareBps is the pool's share of summed purchase value, 0-10000.
	ShareBps *big.Int
	// CacheTTL bounds how long a computed pool figure is reused.
	CacheTTL time.Duration
}

// poolEntry is a cached pool computation for one weekly window.
type poolEntry struct {
	startBlock  uint64
	latestBlock uint64
	totalWei    *big.Int
	poolWei     *big.Int
	computedAt  time.Time
}

// Estimator computes weekly pool projections. Safe for concurrent use;
// cache population is idempotent so racing computations only cost work.
type Estimator struct {
	backend EthBackend
	windows WindowSource
	config  Config

	tsMu   sync.RWMutex
	tsMemo map[uint64]uint64 // block number -> timestamp, never invalidated

	poolMu sync.RWMutex
	pools  map[string]*poolEntry
}

// NewEstimator creates a pool estimator over the given backend and window
// source.
func NewEstimator(backend EthBackend, windows WindowSource, config Config) *Estimator {
	if config.ShareBps == nil {
		config.ShareBps = big.NewInt(0)
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 45 * time.Second
	}
	return &Estimator{
		backend: backend,
		windows: windows,
		config:  config,
		tsMemo:  make(map[uint64]uint64),
		pools:   make(map[string]*poolEntry),
	}
}

// EstimateCurrentWeek resolves the current weekly window for the wallet and
// projects its proportional payout from the estimated pool. Within the cache
// TTL only the final proportional division is recomputed, so per-wallet
// numbers stay fresh while the chain scan is amortized.
func (e *Estimator) EstimateCurrentWeek(ctx context.Context, wallet string) (*types.WeeklyPoolProjection, error) {
	window, err := e.windows.CurrentWindow(ctx, wallet)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%d:%d", window.Week, window.StartUnix)

	entry, cached := e.freshEntry(key)
	if !cached {
		entry, err = e.computePool(ctx, key, window)
		if err != nil {
			return nil, err
		}
	}

	projected := big.NewInt(0)
	if window.GlobalScore.Sign() > 0 {
		projected = new(big.Int).Mul(entry.poolWei, window.UserScore)
		projected.Quo(projected, window.GlobalScore)
	}

	return &types.WeeklyPoolProjection{
		WeekNumber:     window.Week,
		WeekStart:      window.StartsAt.UTC().Format(time.RFC3339),
		WeekEnd:        window.EndsAt.UTC().Format(time.RFC3339),
		UserScore:      window.UserScore.String(),
		GlobalScore:    window.GlobalScore.String(),
		PoolWei:        entry.poolWei.String(),
		ProjectedWei:   projected.String(),
		StartBlock:     entry.startBlock,
		LatestBlock:    entry.latestBlock,
		ComputedAtUnix: entry.computedAt.Unix(),
		FromCachedPool: cached,
	}, nil
}

// freshEntry returns the cached pool entry for the key when it is within
// the TTL.
func (e *Estimator) freshEntry(key string) (*poolEntry, bool) {
	e.poolMu.RLock()
	defer e.poolMu.RUnlock()

	entry, ok := e.pools[key]
	if !ok || time.Since(entry.computedAt) > e.config.CacheTTL {
		return nil, false
	}
	return entry, true
}

// computePool scans the chain for the window and stores the result. An
// expired entry for the same window key donates its resolved start block so
// the binary search is not repeated; a new window key always searches.
func (e *Estimator) computePool(ctx context.Context, key string, window *types.WeeklyWindow) (*poolEntry, error) {
	if e.backend == nil {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable, "RPC backend is not configured")
	}

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"week":      window.Week,
		"weekStart": window.StartUnix,
	})

	latest, err := e.backend.BlockNumber(ctx)
	if err != nil {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable, fmt.Sprintf("failed to fetch latest block: %v", err))
	}

	var startBlock uint64
	e.poolMu.RLock()
	stale, hadStale := e.pools[key]
	e.poolMu.RUnlock()

	if hadStale {
		startBlock = stale.startBlock
	} else {
		startBlock, err = e.findStartBlock(ctx, uint64(window.StartUnix), latest)
		if err != nil {
			return nil, err
		}
	}

	total, err := e.sumLogRange(ctx, startBlock, latest)
	if err != nil {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable, fmt.Sprintf("failed to sum purchase logs: %v", err))
	}

	pool := new(big.Int).Mul(total, e.config.ShareBps)
	pool.Quo(pool, bpsDenominator)

	entry := &poolEntry{
		startBlock:  startBlock,
		latestBlock: latest,
		totalWei:    total,
		poolWei:     pool,
		computedAt:  time.Now(),
	}

	e.poolMu.Lock()
	e.pools[key] = entry
	e.poolMu.Unlock()

	logger.WithFields(map[string]interface{}{
		"startBlock":  startBlock,
		"latestBlock": latest,
		"poolWei":     pool.String(),
	}).Info("Weekly pool estimate computed")

	return entry, nil
}

// findStartBlock binary-searches for the smallest block whose timestamp is
// at or after the target instant. Block timestamps are assumed monotonic.
// When even the chain head predates the target the returned block is
// latest+1, which yields an empty scan range.
func (e *Estimator) findStartBlock(ctx context.Context, target uint64, latest uint64) (uint64, error) {
	headTime, err := e.blockTime(ctx, latest)
	if err != nil {
		return 0, err
	}
	if headTime < target {
		return latest + 1, nil
	}

	low := uint64(0)
	high := latest
	for low < high {
		mid := low + (high-low)/2

		blockTime, err := e.blockTime(ctx, mid)
		if err != nil {
			return 0, err
		}

		if blockTime < target {
			low = mid + 1
		} else {
			high = mid
		}
	}

	return low, nil
}

// blockTime returns a block's timestamp, memoized for the process lifetime
// since a mined block's timestamp never changes.
func (e *Estimator) blockTime(ctx context.Context, number uint64) (uint64, error) {
	e.tsMu.RLock()
	ts, ok := e.tsMemo[number]
	e.tsMu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := e.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, types.NewServiceError(types.CodeUpstreamUnavailable, fmt.Sprintf("failed to fetch block %d: %v", number, err))
	}

	e.tsMu.Lock()
	e.tsMemo[number] = header.Time
	e.tsMu.Unlock()

	return header.Time, nil
}

// sumLogRange sums the purchase event value over [from, to]. A failed query
// spanning more than one block is bisected and both halves are fetched
// concurrently; a failed single-block query propagates the error.
func (e *Estimator) sumLogRange(ctx context.Context, from, to uint64) (*big.Int, error) {
	if from > to {
		return big.NewInt(0), nil
	}

	logs, err := e.backend.FilterLogs(ctx, e.filterQuery(from, to))
	if err == nil {
		total := big.NewInt(0)
		for _, entry := range logs {
			total.Add(total, logValue(entry))
		}
		return total, nil
	}

	if from == to {
		return nil, err
	}

	if rangeTooLarge(err) {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"from": from,
			"to":   to,
		}).Debug("Provider rejected log range width, bisecting")
	}

	mid := from + (to-from)/2

	var lowerTotal, upperTotal *big.Int
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var groupErr error
		lowerTotal, groupErr = e.sumLogRange(groupCtx, from, mid)
		return groupErr
	})
	group.Go(func() error {
		var groupErr error
		upperTotal, groupErr = e.sumLogRange(groupCtx, mid+1, to)
		return groupErr
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return new(big.Int).Add(lowerTotal, upperTotal), nil
}

func (e *Estimator) filterQuery(from, to uint64) ethereum.FilterQuery {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
	}
	if e.config.PurchaseAddress != (common.Address{}) {
		query.Addresses = []common.Address{e.config.PurchaseAddress}
	}
	if e.config.PurchaseTopic != (common.Hash{}) {
		query.Topics = [][]common.Hash{{e.config.PurchaseTopic}}
	}
	return query
}

// logValue extracts the event's value field: the first 32-byte word of the
// log data.
func logValue(entry ethtypes.Log) *big.Int {
	data := entry.Data
	if len(data) > 32 {
		data = data[:32]
	}
	return new(big.Int).SetBytes(data)
}

// rangeTooLarge reports whether an error looks like a provider rejecting
// the width of an eth_getLogs range.
func rangeTooLarge(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "range") ||
		strings.Contains(message, "too large") ||
		strings.Contains(message, "too many") ||
		strings.Contains(message, "limit exceeded") ||
		strings.Contains(message, "response size")
}
