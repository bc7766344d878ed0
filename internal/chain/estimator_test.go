package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-cards/internal/types"
)

// fakeBackend is a synthetic chain: block n has timestamps[n] and emits the
// log values in logs[n]. A non-zero maxRange makes FilterLogs reject wider
// queries the way capped providers do.
type fakeBackend struct {
	mu          sync.Mutex
	timestamps  []uint64
	logs        map[uint64][]*big.Int
	maxRange    uint64
	headerCalls int
	filterCalls int
}

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	return uint64(len(f.timestamps) - 1), nil
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	f.mu.Lock()
	f.headerCalls++
	f.mu.Unlock()

	n := number.Uint64()
	if n >= uint64(len(f.timestamps)) {
		return nil, errors.New("block not found")
	}
	return &ethtypes.Header{Number: new(big.Int).SetUint64(n), Time: f.timestamps[n]}, nil
}

func (f *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	f.mu.Lock()
	f.filterCalls++
	f.mu.Unlock()

	from := q.FromBlock.Uint64()
	to := q.ToBlock.Uint64()
	if f.maxRange > 0 && to-from+1 > f.maxRange {
		return nil, errors.New("query returned more than allowed: block range too large")
	}

	var result []ethtypes.Log
	for n := from; n <= to; n++ {
		for _, value := range f.logs[n] {
			result = append(result, ethtypes.Log{
				BlockNumber: n,
				Data:        common.BigToHash(value).Bytes(),
			})
		}
	}
	return result, nil
}

// fakeWindows returns a fixed weekly window regardless of wallet.
type fakeWindows struct {
	window *types.WeeklyWindow
}

func (f *fakeWindows) CurrentWindow(ctx context.Context, wallet string) (*types.WeeklyWindow, error) {
	return f.window, nil
}

func testWindow(startUnix int64, user, global int64) *types.WeeklyWindow {
	start := time.Unix(startUnix, 0).UTC()
	return &types.WeeklyWindow{
		Week:        34,
		StartsAt:    start,
		EndsAt:      start.Add(7 * 24 * time.Hour),
		StartUnix:   startUnix,
		EndUnix:     start.Add(7 * 24 * time.Hour).Unix(),
		UserScore:   big.NewInt(user),
		GlobalScore: big.NewInt(global),
	}
}

func TestFindStartBlock_ExactTimestampMatchesBlock(t *testing.T) {
	backend := &fakeBackend{timestamps: []uint64{100, 110, 120, 130, 140}}
	estimator := NewEstimator(backend, nil, Config{ShareBps: big.NewInt(5000)})

	block, err := estimator.findStartBlock(context.Background(), 120, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), block)
}

func TestFindStartBlock_TargetBetweenBlocks(t *testing.T) {
	backend := &fakeBackend{timestamps: []uint64{100, 110, 120, 130, 140}}
	estimator := NewEstimator(backend, nil, Config{ShareBps: big.NewInt(5000)})

	block, err := estimator.findStartBlock(context.Background(), 115, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), block)
}

func TestFindStartBlock_TargetAfterHead(t *testing.T) {
	backend := &fakeBackend{timestamps: []uint64{100, 110, 120}}
	estimator := NewEstimator(backend, nil, Config{ShareBps: big.NewInt(5000)})

	block, err := estimator.findStartBlock(context.Background(), 999, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), block)
}

func TestSumLogRange_BisectionMatchesUnrestrictedSum(t *testing.T) {
	logs := map[uint64][]*big.Int{
		0: {big.NewInt(7)},
		2: {big.NewInt(100), big.NewInt(23)},
		5: {big.NewInt(1_000_000)},
		9: {big.NewInt(4)},
	}
	timestamps := make([]uint64, 10)
	for n := range timestamps {
		timestamps[n] = uint64(100 + 10*n)
	}

	unrestricted := &fakeBackend{timestamps: timestamps, logs: logs}
	capped := &fakeBackend{timestamps: timestamps, logs: logs, maxRange: 1}

	want, err := NewEstimator(unrestricted, nil, Config{}).sumLogRange(context.Background(), 0, 9)
	require.NoError(t, err)

	got, err := NewEstimator(capped, nil, Config{}).sumLogRange(context.Background(), 0, 9)
	require.NoError(t, err)

	assert.Equal(t, "1000134", want.String())
	assert.Equal(t, want.String(), got.String())
}

func TestEstimateCurrentWeek_PoolAndProjection(t *testing.T) {
	backend := &fakeBackend{
		timestamps: []uint64{100, 110, 120, 130, 140, 150},
		logs: map[uint64][]*big.Int{
			1: {big.NewInt(500)}, // before window start, excluded
			2: {big.NewInt(600)},
			4: {big.NewInt(400)},
		},
	}
	windows := &fakeWindows{window: testWindow(120, 120, 480)}
	estimator := NewEstimator(backend, windows, Config{ShareBps: big.NewInt(5000), CacheTTL: time.Minute})

	projection, err := estimator.EstimateCurrentWeek(context.Background(), "0xwallet")
	require.NoError(t, err)

	// Blocks 2..5 sum to 1000 wei; 5000 bps of that is 500; the wallet holds
	// a quarter of the global score.
	assert.Equal(t, "500", projection.PoolWei)
	assert.Equal(t, "125", projection.ProjectedWei)
	assert.Equal(t, uint64(2), projection.StartBlock)
	assert.Equal(t, uint64(5), projection.LatestBlock)
	assert.False(t, projection.FromCachedPool)
}

func TestEstimateCurrentWeek_CacheHitSkipsChainScan(t *testing.T) {
	backend := &fakeBackend{
		timestamps: []uint64{100, 110, 120},
		logs:       map[uint64][]*big.Int{2: {big.NewInt(1000)}},
	}
	windows := &fakeWindows{window: testWindow(120, 10, 100)}
	estimator := NewEstimator(backend, windows, Config{ShareBps: big.NewInt(5000), CacheTTL: time.Minute})

	first, err := estimator.EstimateCurrentWeek(context.Background(), "0xwallet")
	require.NoError(t, err)

	filterCallsAfterFirst := backend.filterCalls

	second, err := estimator.EstimateCurrentWeek(context.Background(), "0xwallet")
	require.NoError(t, err)

	assert.True(t, second.FromCachedPool)
	assert.Equal(t, first.PoolWei, second.PoolWei)
	assert.Equal(t, filterCallsAfterFirst, backend.filterCalls)
}

func TestEstimateCurrentWeek_ExpiredEntryReusesStartBlock(t *testing.T) {
	backend := &fakeBackend{
		timestamps: []uint64{100, 110, 120, 130},
		logs:       map[uint64][]*big.Int{2: {big.NewInt(1000)}},
	}
	windows := &fakeWindows{window: testWindow(120, 10, 100)}
	estimator := NewEstimator(backend, windows, Config{ShareBps: big.NewInt(5000), CacheTTL: time.Nanosecond})

	_, err := estimator.EstimateCurrentWeek(context.Background(), "0xwallet")
	require.NoError(t, err)

	headerCallsAfterFirst := backend.headerCalls
	time.Sleep(time.Millisecond)

	second, err := estimator.EstimateCurrentWeek(context.Background(), "0xwallet")
	require.NoError(t, err)

	// The window key is unchanged, so the expired entry donates its start
	// block and no header lookups happen on the recompute.
	assert.False(t, second.FromCachedPool)
	assert.Equal(t, headerCallsAfterFirst, backend.headerCalls)
	assert.Equal(t, uint64(2), second.StartBlock)
}

func TestEstimateCurrentWeek_ZeroGlobalScore(t *testing.T) {
	backend := &fakeBackend{
		timestamps: []uint64{100, 110, 120},
		logs:       map[uint64][]*big.Int{2: {big.NewInt(1000)}},
	}
	windows := &fakeWindows{window: testWindow(120, 10, 0)}
	estimator := NewEstimator(backend, windows, Config{ShareBps: big.NewInt(5000)})

	projection, err := estimator.EstimateCurrentWeek(context.Background(), "0xwallet")
	require.NoError(t, err)

	assert.Equal(t, "500", projection.PoolWei)
	assert.Equal(t, "0", projection.ProjectedWei)
}

func TestEstimateCurrentWeek_WindowNotStartedYet(t *testing.T) {
	backend := &fakeBackend{timestamps: []uint64{100, 110, 120}}
	windows := &fakeWindows{window: testWindow(999, 10, 100)}
	estimator := NewEstimator(backend, windows, Config{ShareBps: big.NewInt(5000)})

	projection, err := estimator.EstimateCurrentWeek(context.Background(), "0xwallet")
	require.NoError(t, err)

	assert.Equal(t, "0", projection.PoolWei)
	assert.Equal(t, "0", projection.ProjectedWei)
}

func TestSumLogRange_SingleBlockFailurePropagates(t *testing.T) {
	backend := &failingBackend{}
	estimator := NewEstimator(backend, nil, Config{})

	_, err := estimator.sumLogRange(context.Background(), 3, 3)
	assert.Error(t, err)
}

// failingBackend rejects every log query.
type failingBackend struct{}

func (f *failingBackend) BlockNumber(ctx context.Context) (uint64, error) {
	return 0, errors.New("down")
}

func (f *failingBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	return nil, errors.New("down")
}

func (f *failingBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	return nil, errors.New("down")
}
