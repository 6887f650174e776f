package app

import (
	"context"
	"errors"
	"testing"

	"github.com/fundrequest/claim-service/internal/domain"
	"github.com/shopspring/decimal"
)

type fundsReaderStub struct {
	funds []domain.Fund
	err   error
}

func (s fundsReaderStub) FindFundsByRequestID(ctx context.Context, requestID int64) ([]domain.Fund, error) {
	return s.funds, s.err
}

func TestRequestDtoMapper_SplitsFundsBySymbol(t *testing.T) {
	funds := fundsReaderStub{funds: []domain.Fund{
		{Token: "0xDAI0000000000000000000000000000000000002", AmountInWei: decimal.RequireFromString("4")},
		{Token: fndToken, AmountInWei: decimal.RequireFromString("100")},
		{Token: daiToken, AmountInWei: decimal.RequireFromString("6")},
		{Token: fndToken, AmountInWei: decimal.RequireFromString("1")},
	}}
	mapper := NewRequestDtoMapper(funds, map[string]string{"0xFND0000000000000000000000000000000000001": "fnd", daiToken: "DAI"})

	dto, err := mapper.Map(context.Background(), area51Request(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dto.ID != 3124 || dto.Status != domain.RequestStatusFunded || dto.IssueInformation.Repo != "area51" {
		t.Fatalf("unexpected dto %+v", dto)
	}
	if dto.FndFunds == nil || !dto.FndFunds.TotalAmount.Equal(decimal.RequireFromString("101")) {
		t.Fatalf("unexpected FND funds %+v", dto.FndFunds)
	}
	if dto.OtherFunds == nil || dto.OtherFunds.TokenSymbol != "DAI" || !dto.OtherFunds.TotalAmount.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("unexpected other funds %+v", dto.OtherFunds)
	}
	if dto.Watchers != nil || dto.LoggedInUserIsWatcher {
		t.Fatal("expected watchers to be hidden from anonymous callers")
	}
}

func TestRequestDtoMapper_WatcherFlag(t *testing.T) {
	mapper := NewRequestDtoMapper(fundsReaderStub{}, nil)

	watcher := davyvanroy()
	dto, err := mapper.Map(context.Background(), area51Request(), &watcher)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dto.LoggedInUserIsWatcher || len(dto.Watchers) != 1 {
		t.Fatalf("expected caller to be a watcher, got %+v", dto)
	}
	if dto.FndFunds != nil || dto.OtherFunds != nil {
		t.Fatal("expected no fund totals without funds")
	}

	stranger := domain.Principal{Subject: "someone"}
	dto, err = mapper.Map(context.Background(), area51Request(), &stranger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dto.LoggedInUserIsWatcher {
		t.Fatal("expected stranger not to be a watcher")
	}
}

func TestRequestDtoMapper_FundsFailure(t *testing.T) {
	boom := errors.New("db down")
	mapper := NewRequestDtoMapper(fundsReaderStub{err: boom}, nil)

	if _, err := mapper.Map(context.Background(), area51Request(), nil); !errors.Is(err, boom) {
		t.Fatalf("expected funds failure, got %v", err)
	}
}
