package models

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const RANKING_SNAPSHOTS_TABLE = "ranking_snapshots"

const RANKING_SNAPSHOT_CHAIN_ID = "chain_id"
const RANKING_SNAPSHOT_GAME_ID = "game_id"
const RANKING_SNAPSHOT_BLOCK_NUMBER = "block_number"
const RANKING_SNAPSHOT_TAKEN_AT = "taken_at"
const RANKING_SNAPSHOT_PLAYER_ADDRESS = "player_address"
const RANKING_SNAPSHOT_PLAYER_INDEX = "player_index"
const RANKING_SNAPSHOT_STARTING_BALANCE = "starting_balance"
const RANKING_SNAPSHOT_CURRENT_BALANCE = "current_balance"
const RANKING_SNAPSHOT_IS_ELIMINATED = "is_eliminated"
const RANKING_SNAPSHOT_ELIMINATION_REASON = "elimination_reason"
const RANKING_SNAPSHOT_GAIN_PERCENTAGE = "gain_percentage"
const RANKING_SNAPSHOT_RANK = "rank"

// Gain percentage reported for every eliminated player.
const ELIMINATED_GAIN_PERCENTAGE float64 = -100

type Player struct {
	Address           common.Address `json:"address"`
	Index             uint64         `json:"index"`
	StartingBalance   *big.Int       `json:"starting_balance"`
	CurrentBalance    *big.Int       `json:"current_balance"`
	IsEliminated      bool           `json:"is_eliminated"`
	EliminationReason string         `json:"elimination_reason,omitempty"`
	GainPercentage    float64        `json:"gain_percentage"`
	//Assigned after fetching, 0 = not ranked
	Rank int `json:"rank"`
}

// address -> 1-based rank
type RankingTable map[common.Address]int

type RankingSnapshot struct {
	ChainID     uint      `json:"chain_id"`
	GameID      *big.Int  `json:"game_id"`
	BlockNumber uint64    `json:"block_number"`
	Players     []Player  `json:"players"`
	TakenAt     time.Time `json:"taken_at"`
}

func (s *RankingSnapshot) GetJSON() ([]byte, error) {
	return json.Marshal(s)
}
