package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/fundrequest/claim-service/internal/domain"
	"github.com/shopspring/decimal"
)

const fndTokenSymbol = "FND"

// FundsReader is the part of the repository the mapper needs.
type FundsReader interface {
	FindFundsByRequestID(ctx context.Context, requestID int64) ([]domain.Fund, error)
}

// RequestDtoMapper builds the display representation of a request, including its fund
// totals and the caller's watcher flag.
type RequestDtoMapper struct {
	funds        FundsReader
	tokenSymbols map[string]string
}

// NewRequestDtoMapper creates a mapper. tokenSymbols maps token addresses to symbols;
// lookups are case-insensitive.
func NewRequestDtoMapper(funds FundsReader, tokenSymbols map[string]string) *RequestDtoMapper {
	symbols := make(map[string]string, len(tokenSymbols))
	for address, symbol := range tokenSymbols {
		symbols[strings.ToLower(strings.TrimSpace(address))] = strings.TrimSpace(symbol)
	}
	return &RequestDtoMapper{funds: funds, tokenSymbols: symbols}
}

var _ RequestMapper = (*RequestDtoMapper)(nil)

// Map converts request. principal may be nil for anonymous callers.
func (m *RequestDtoMapper) Map(ctx context.Context, request *domain.Request, principal *domain.Principal) (domain.RequestDto, error) {
	dto := domain.RequestDto{
		ID:               request.ID,
		Status:           request.Status,
		Type:             request.Type,
		IssueInformation: request.IssueInformation,
		CreatedAt:        request.CreatedAt,
	}

	if principal != nil {
		dto.Watchers = request.WatcherIDs()
		for _, watcher := range dto.Watchers {
			if watcher == principal.Subject {
				dto.LoggedInUserIsWatcher = true
				break
			}
		}
	}

	funds, err := m.funds.FindFundsByRequestID(ctx, request.ID)
	if err != nil {
		return domain.RequestDto{}, fmt.Errorf("load funds for request %d: %w", request.ID, err)
	}
	for _, total := range m.totalFunds(funds) {
		total := total
		if strings.EqualFold(total.TokenSymbol, fndTokenSymbol) {
			if dto.FndFunds == nil {
				dto.FndFunds = &total
			}
		} else if dto.OtherFunds == nil {
			dto.OtherFunds = &total
		}
	}
	return dto, nil
}

// totalFunds sums funds per token in first-seen order.
func (m *RequestDtoMapper) totalFunds(funds []domain.Fund) []domain.TotalFundDto {
	var totals []domain.TotalFundDto
	index := make(map[string]int)
	for _, fund := range funds {
		key := strings.ToLower(fund.Token)
		pos, ok := index[key]
		if !ok {
			pos = len(totals)
			index[key] = pos
			totals = append(totals, domain.TotalFundDto{
				TokenAddress: fund.Token,
				TokenSymbol:  m.tokenSymbols[key],
				TotalAmount:  decimal.Zero,
			})
		}
		totals[pos].TotalAmount = totals[pos].TotalAmount.Add(fund.AmountInWei)
	}
	return totals
}
