package models

import (
	"fmt"
	"math/big"
	"strings"
)

// 3000 = 0.3%
const DEFAULT_FEE_TIER uint32 = 3000

type AssetPair struct {
	TokenIn  string
	TokenOut string
	Fee      uint32
}

func NewAssetPair(tokenIn, tokenOut string, fee uint32) AssetPair {
	if fee == 0 {
		fee = DEFAULT_FEE_TIER
	}

	return AssetPair{
		TokenIn:  tokenIn,
		TokenOut: tokenOut,
		Fee:      fee,
	}
}

func (p AssetPair) SameAsset() bool {
	return strings.EqualFold(p.TokenIn, p.TokenOut)
}

func (p AssetPair) GetQuoteIdentificator(chainID uint, amountIn *big.Int) QuoteIdentificator {
	amount := ""
	if amountIn != nil {
		amount = amountIn.String()
	}

	return QuoteIdentificator{
		ChainID:  chainID,
		TokenIn:  strings.ToLower(p.TokenIn),
		TokenOut: strings.ToLower(p.TokenOut),
		AmountIn: amount,
		Fee:      p.Fee,
	}
}

type QuoteIdentificator struct {
	ChainID  uint
	TokenIn  string
	TokenOut string
	AmountIn string
	Fee      uint32
}

func (q QuoteIdentificator) String() string {
	return fmt.Sprintf("%d.%s.%s.%s.%d", q.ChainID, q.TokenIn, q.TokenOut, q.AmountIn, q.Fee)
}
