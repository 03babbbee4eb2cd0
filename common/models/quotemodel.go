package models

import (
	"encoding/json"
	"math/big"
	"time"
)

type Quote struct {
	AmountIn                *big.Int  `json:"amount_in"`
	AmountOut               *big.Int  `json:"amount_out"`
	SqrtPriceX96After       *big.Int  `json:"sqrt_price_x96_after"`
	InitializedTicksCrossed uint32    `json:"initialized_ticks_crossed"`
	GasEstimate             *big.Int  `json:"gas_estimate"`
	FetchedAt               time.Time `json:"fetched_at"`
}

func (q *Quote) GetJSON() ([]byte, error) {
	return json.Marshal(q)
}

func (q *Quote) FillFromJSON(data []byte) error {
	return json.Unmarshal(data, q)
}

func (q *Quote) IsFresh(now time.Time, staleTime time.Duration) bool {
	if q.FetchedAt.IsZero() {
		return false
	}

	return now.Sub(q.FetchedAt) < staleTime
}
