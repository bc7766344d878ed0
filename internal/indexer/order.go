package indexer

import (
	"math/big"
	"sort"

	"github.com/wallet-cards/internal/types"
)

// parseAmount converts a smallest-unit decimal string to a big integer.
// Unparsable amounts count as zero rather than failing a whole page of rows.
func parseAmount(value string) *big.Int {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return big.NewInt(0)
	}
	return amount
}

func sum(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

func sub(a, b *big.Int) *big.Int {
	return new(big.Int).Sub(a, b)
}

// Order sorts leaderboard entries into the deterministic total order:
// net profit descending, total claims descending, wallet ascending.
func Order(entries []types.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		netCmp := parseAmount(entries[i].NetAmount).Cmp(parseAmount(entries[j].NetAmount))
		if netCmp != 0 {
			return netCmp > 0
		}

		claimsCmp := parseAmount(entries[i].TotalClaimAmount).Cmp(parseAmount(entries[j].TotalClaimAmount))
		if claimsCmp != 0 {
			return claimsCmp > 0
		}

		return entries[i].Wallet < entries[j].Wallet
	})
}

// SumGlobal totals the scanned rows into a GlobalStats projection. The
// wallet count is set by the caller from the aggregate query, since the
// scan may be capped below the full row count.
func SumGlobal(entries []types.LeaderboardEntry) *types.GlobalStats {
	key := big.NewInt(0)
	weekly := big.NewInt(0)
	jackpot := big.NewInt(0)

	for _, entry := range entries {
		key.Add(key, parseAmount(entry.KeyPurchaseAmount))
		weekly.Add(weekly, parseAmount(entry.WeeklyClaimAmount))
		jackpot.Add(jackpot, parseAmount(entry.JackpotClaimAmount))
	}

	totalClaims := sum(weekly, jackpot)
	net := sub(totalClaims, key)

	return &types.GlobalStats{
		KeyPurchaseAmount:  key.String(),
		WeeklyClaimAmount:  weekly.String(),
		JackpotClaimAmount: jackpot.String(),
		TotalClaimAmount:   totalClaims.String(),
		NetAmount:          net.String(),
	}
}
