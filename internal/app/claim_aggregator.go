package app

import (
	"github.com/fundrequest/claim-service/internal/domain"
	"github.com/shopspring/decimal"
)

// ClaimDtoAggregator groups finalized claims by the transaction that paid them out.
type ClaimDtoAggregator struct{}

func NewClaimDtoAggregator() *ClaimDtoAggregator {
	return &ClaimDtoAggregator{}
}

// AggregateClaims groups claims by transaction hash. Groups appear in the order their
// hash is first seen and keep the input order of their claims. The input is not modified.
func (a *ClaimDtoAggregator) AggregateClaims(claims []domain.ClaimDto) domain.ClaimsByTransactionAggregate {
	result := domain.ClaimsByTransactionAggregate{Claims: []domain.ClaimByTransactionAggregate{}}
	index := make(map[string]int)

	for _, claim := range claims {
		pos, ok := index[claim.TransactionHash]
		if !ok {
			pos = len(result.Claims)
			index[claim.TransactionHash] = pos
			result.Claims = append(result.Claims, domain.ClaimByTransactionAggregate{
				TransactionHash: claim.TransactionHash,
				Solver:          claim.Solver,
				Timestamp:       claim.Timestamp,
			})
		}
		result.Claims[pos].Claims = append(result.Claims[pos].Claims, claim)
	}

	for i := range result.Claims {
		result.Claims[i].Totals = tokenTotals(result.Claims[i].Claims)
	}
	return result
}

func tokenTotals(claims []domain.ClaimDto) []domain.TokenTotal {
	totals := make([]domain.TokenTotal, 0, 1)
	index := make(map[string]int)
	for _, claim := range claims {
		pos, ok := index[claim.Token]
		if !ok {
			pos = len(totals)
			index[claim.Token] = pos
			totals = append(totals, domain.TokenTotal{Token: claim.Token, Amount: decimal.Zero})
		}
		totals[pos].Amount = totals[pos].Amount.Add(claim.Amount)
	}
	return totals
}
