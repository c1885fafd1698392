package fetcher

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/rxtech-lab/argo-batch/internal/broker"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/mocks"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type FetcherTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller
	md   *mocks.MockMarketData
}

func TestFetcherSuite(t *testing.T) {
	suite.Run(t, new(FetcherTestSuite))
}

func (suite *FetcherTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.md = mocks.NewMockMarketData(suite.ctrl)
}

func (suite *FetcherTestSuite) TearDownTest() {
	suite.ctrl.Finish()
}

func (suite *FetcherTestSuite) fetcher(batchSize, minHistory int) *BatchFetcher {
	return New(suite.md, Config{BatchSize: batchSize, RequestsPerSecond: 0, Burst: 1, MinHistory: minHistory}, logger.NewNop())
}

func nBars(symbol string, n int) []types.Bar {
	out := make([]types.Bar, n)
	for i := range out {
		out[i] = types.Bar{Symbol: symbol, Close: 100}
	}

	return out
}

func response(bars map[string][]types.Bar, failed map[string]error) broker.BarsResponse {
	resp := broker.NewBarsResponse()
	for k, v := range bars {
		resp.Bars[k] = v
	}

	for k, v := range failed {
		resp.Errors[k] = v
	}

	return resp
}

func (suite *FetcherTestSuite) TestBatchesAndOmitsFailures() {
	suite.md.EXPECT().FetchBars(gomock.Any(), []string{"A", "B"}, 300).Return(response(
		map[string][]types.Bar{"A": nBars("A", 60), "B": nBars("B", 10)}, nil), nil)
	suite.md.EXPECT().FetchBars(gomock.Any(), []string{"C", "D"}, 300).Return(broker.BarsResponse{}, stderrors.New("timeout"))
	suite.md.EXPECT().FetchBars(gomock.Any(), []string{"E"}, 300).Return(response(
		map[string][]types.Bar{"E": nBars("E", 80)}, map[string]error{}), nil)

	var progress []int

	out, err := suite.fetcher(2, 50).FetchHistory(context.Background(), []string{"A", "B", "C", "D", "E", "A"}, 300,
		func(done, _ int) { progress = append(progress, done) })

	suite.Len(out, 2)
	suite.Contains(out, "A")
	suite.Contains(out, "E")
	suite.Equal([]int{2, 4, 5}, progress)

	var partial *errors.PartialFetchError
	suite.Require().True(errors.As(err, &partial))
	suite.ElementsMatch([]string{"B", "C", "D"}, partial.Symbols())
	suite.True(errors.IsInsufficientDataError(partial.Failed["B"]))
}

func (suite *FetcherTestSuite) TestMissingSymbolIsFailed() {
	suite.md.EXPECT().FetchBars(gomock.Any(), []string{"A", "B"}, 10).Return(response(
		map[string][]types.Bar{"A": nBars("A", 5)},
		map[string]error{"B": errors.New(errors.ErrCodeMarketDataFetchFailed, "bad ticker")}), nil)

	out, err := suite.fetcher(5, 1).FetchHistory(context.Background(), []string{"A", "B"}, 10, nil)
	suite.Len(out, 1)

	var partial *errors.PartialFetchError
	suite.Require().True(errors.As(err, &partial))
	suite.Equal([]string{"B"}, partial.Symbols())
}

func (suite *FetcherTestSuite) TestNoFailuresReturnsNilError() {
	suite.md.EXPECT().FetchBars(gomock.Any(), []string{"A"}, 10).Return(response(
		map[string][]types.Bar{"A": nBars("A", 5)}, nil), nil)

	out, err := suite.fetcher(5, 1).FetchHistory(context.Background(), []string{"A"}, 10, nil)
	suite.NoError(err)
	suite.Len(out, 1)
}

func (suite *FetcherTestSuite) TestAllBatchesFailed() {
	suite.md.EXPECT().FetchBars(gomock.Any(), gomock.Any(), 10).Return(broker.BarsResponse{}, stderrors.New("down")).Times(2)

	out, err := suite.fetcher(1, 1).FetchHistory(context.Background(), []string{"A", "B"}, 10, nil)
	suite.Nil(out)
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataFetchFailed))
}

func (suite *FetcherTestSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(suite.md, Config{BatchSize: 1, RequestsPerSecond: 0.001, Burst: 1, MinHistory: 1}, logger.NewNop())
	suite.md.EXPECT().FetchBars(gomock.Any(), gomock.Any(), gomock.Any()).Return(broker.BarsResponse{}, context.Canceled).AnyTimes()

	_, err := f.FetchHistory(ctx, []string{"A", "B"}, 10, nil)
	suite.Error(err)
}

func (suite *FetcherTestSuite) TestLatestPrices() {
	suite.md.EXPECT().FetchLatestPrices(gomock.Any(), []string{"A", "B"}).Return(map[string]float64{"A": 10}, nil)
	suite.md.EXPECT().FetchLatestPrices(gomock.Any(), []string{"C"}).Return(nil, stderrors.New("down"))

	prices, err := suite.fetcher(2, 1).FetchLatestPrices(context.Background(), []string{"A", "B", "C"})
	suite.NoError(err)
	suite.Equal(map[string]float64{"A": 10}, prices)
}

func (suite *FetcherTestSuite) TestLatestPricesAllFailed() {
	suite.md.EXPECT().FetchLatestPrices(gomock.Any(), gomock.Any()).Return(nil, stderrors.New("down"))

	_, err := suite.fetcher(5, 1).FetchLatestPrices(context.Background(), []string{"A"})
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataFetchFailed))
}
