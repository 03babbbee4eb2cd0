package playeraggregator

import (
	"math/big"
	"sort"

	"github.com/alexkalak/go_arena_market/common/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// GainPercentage is (current - starting) / starting * 100 rounded to two decimals.
// A non-positive starting balance yields 0.
func GainPercentage(startingBalance, currentBalance *big.Int) float64 {
	if startingBalance == nil || currentBalance == nil || startingBalance.Sign() <= 0 {
		return 0
	}

	starting := decimal.NewFromBigInt(startingBalance, 0)
	current := decimal.NewFromBigInt(currentBalance, 0)

	return current.Sub(starting).Mul(hundred).DivRound(starting, 2).InexactFloat64()
}

// rawGain is the exact relative gain used for ordering, not rounded and not scaled.
func rawGain(startingBalance, currentBalance *big.Int) *big.Rat {
	if startingBalance == nil || currentBalance == nil || startingBalance.Sign() <= 0 {
		return new(big.Rat)
	}

	diff := new(big.Int).Sub(currentBalance, startingBalance)
	return new(big.Rat).SetFrac(diff, startingBalance)
}

type rankEntry struct {
	address common.Address
	alive   bool
	gain    *big.Rat
}

// rank orders entries by gain descending with eliminated entries after every
// alive one, keeps the input order on ties and assigns ranks starting at 1.
func rank(entries []rankEntry) models.RankingTable {
	sorted := make([]rankEntry, len(entries))
	copy(sorted, entries)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].alive != sorted[j].alive {
			return sorted[i].alive
		}
		if !sorted[i].alive {
			return false
		}
		return sorted[i].gain.Cmp(sorted[j].gain) > 0
	})

	table := make(models.RankingTable, len(sorted))
	for i, entry := range sorted {
		table[entry.address] = i + 1
	}

	return table
}

func rankPlayers(players []models.Player) models.RankingTable {
	entries := make([]rankEntry, 0, len(players))
	for _, player := range players {
		entries = append(entries, rankEntry{
			address: player.Address,
			alive:   !player.IsEliminated,
			gain:    rawGain(player.StartingBalance, player.CurrentBalance),
		})
	}

	return rank(entries)
}
