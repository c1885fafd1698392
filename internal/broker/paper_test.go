package broker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/types"
	codes "github.com/rxtech-lab/argo-batch/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type PaperTestSuite struct {
	suite.Suite
	feed *PaperFeed
	cfg  config.PaperConfig
}

func TestPaperSuite(t *testing.T) {
	suite.Run(t, new(PaperTestSuite))
}

func (suite *PaperTestSuite) SetupTest() {
	suite.cfg = config.PaperConfig{StartingCash: 10000, SlippagePct: 0}

	feed, err := NewPaperFeed(suite.cfg, logger.NewNop())
	suite.Require().NoError(err)
	suite.feed = feed
}

func (suite *PaperTestSuite) TearDownTest() {
	suite.feed.Close()
}

func order(clientID, symbol string, side types.PurchaseType, qty float64, purpose types.OrderPurpose) types.ExecuteOrder {
	return types.ExecuteOrder{
		ClientOrderID: clientID,
		Symbol:        symbol,
		Side:          side,
		OrderType:     types.OrderTypeMarket,
		Quantity:      qty,
		Purpose:       purpose,
		Reason:        "test",
	}
}

func (suite *PaperTestSuite) TestDatasetBars() {
	path := filepath.Join(suite.T().TempDir(), "bars.csv")
	csv := "symbol,time,open,high,low,close,volume\n" +
		"AAPL,2026-10-12 00:00:00,100,101,99,100.5,1000\n" +
		"AAPL,2026-10-13 00:00:00,100.5,102,100,101.5,1100\n" +
		"AAPL,2026-10-14 00:00:00,101.5,103,101,102.5,1200\n" +
		"MSFT,2026-10-14 00:00:00,300,301,299,300.5,900\n"
	suite.Require().NoError(os.WriteFile(path, []byte(csv), 0o644))
	suite.Require().NoError(suite.feed.Load(path))

	resp, err := suite.feed.FetchBars(context.Background(), []string{"AAPL", "TSLA"}, 2)
	suite.Require().NoError(err)
	suite.Require().Len(resp.Bars["AAPL"], 2)
	suite.Equal(101.5, resp.Bars["AAPL"][0].Close)
	suite.Equal(102.5, resp.Bars["AAPL"][1].Close)
	suite.True(codes.HasCode(resp.Errors["TSLA"], codes.ErrCodeDataNotFound))

	prices, err := suite.feed.FetchLatestPrices(context.Background(), []string{"AAPL", "MSFT", "TSLA"})
	suite.Require().NoError(err)
	suite.Equal(map[string]float64{"AAPL": 102.5, "MSFT": 300.5}, prices)

	suite.feed.SetPrice("AAPL", 99)
	prices, err = suite.feed.FetchLatestPrices(context.Background(), []string{"AAPL"})
	suite.Require().NoError(err)
	suite.Equal(99.0, prices["AAPL"])
}

func (suite *PaperTestSuite) TestNoDataset() {
	resp, err := suite.feed.FetchBars(context.Background(), []string{"AAPL"}, 10)
	suite.Require().NoError(err)
	suite.Contains(resp.Errors, "AAPL")

	prices, err := suite.feed.FetchLatestPrices(context.Background(), []string{"AAPL"})
	suite.Require().NoError(err)
	suite.Empty(prices)
}

func (suite *PaperTestSuite) TestMarketOrderRoundTrip() {
	suite.feed.SetPrice("AAPL", 100)
	tr := NewPaperTrading(suite.cfg, suite.feed, logger.NewNop())
	ctx := context.Background()

	ack, err := tr.SubmitOrder(ctx, order("c1", "AAPL", types.PurchaseTypeBuy, 10, types.OrderPurposeEntry))
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusFilled, ack.Status)

	o, err := tr.GetOrder(ctx, "AAPL", ack.OrderID)
	suite.Require().NoError(err)
	suite.Equal(100.0, o.AvgFillPrice)
	suite.Equal(10.0, o.FilledQty)

	positions, err := tr.GetPositions(ctx)
	suite.Require().NoError(err)
	suite.Equal([]types.BrokerPosition{{Symbol: "AAPL", Quantity: 10, AvgEntryPrice: 100}}, positions)

	suite.feed.SetPrice("AAPL", 110)

	account, err := tr.GetAccount(ctx)
	suite.Require().NoError(err)
	suite.Equal(9000.0, account.Balance)
	suite.Equal(10100.0, account.Equity)
	suite.Equal(100.0, account.UnrealizedPnL)

	_, err = tr.SubmitOrder(ctx, order("c2", "AAPL", types.PurchaseTypeSell, 10, types.OrderPurposeExit))
	suite.Require().NoError(err)

	positions, err = tr.GetPositions(ctx)
	suite.Require().NoError(err)
	suite.Empty(positions)

	account, err = tr.GetAccount(ctx)
	suite.Require().NoError(err)
	suite.Equal(10100.0, account.Balance)
	suite.Equal(100.0, account.RealizedPnL)
}

func (suite *PaperTestSuite) TestShortPosition() {
	suite.feed.SetPrice("XOM", 50)
	tr := NewPaperTrading(suite.cfg, suite.feed, logger.NewNop())
	ctx := context.Background()

	_, err := tr.SubmitOrder(ctx, order("s1", "XOM", types.PurchaseTypeSell, 20, types.OrderPurposeEntry))
	suite.Require().NoError(err)

	positions, err := tr.GetPositions(ctx)
	suite.Require().NoError(err)
	suite.Require().Len(positions, 1)
	suite.Equal(-20.0, positions[0].Quantity)
	suite.Equal(types.DirectionShort, positions[0].Direction())

	suite.feed.SetPrice("XOM", 45)
	_, err = tr.SubmitOrder(ctx, order("s2", "XOM", types.PurchaseTypeBuy, 20, types.OrderPurposeExit))
	suite.Require().NoError(err)

	account, err := tr.GetAccount(ctx)
	suite.Require().NoError(err)
	suite.Equal(100.0, account.RealizedPnL)
}

func (suite *PaperTestSuite) TestDuplicateClientOrderID() {
	suite.feed.SetPrice("AAPL", 100)
	tr := NewPaperTrading(suite.cfg, suite.feed, logger.NewNop())
	ctx := context.Background()

	first, err := tr.SubmitOrder(ctx, order("dup", "AAPL", types.PurchaseTypeBuy, 5, types.OrderPurposeEntry))
	suite.Require().NoError(err)
	second, err := tr.SubmitOrder(ctx, order("dup", "AAPL", types.PurchaseTypeBuy, 5, types.OrderPurposeEntry))
	suite.Require().NoError(err)
	suite.Equal(first.OrderID, second.OrderID)

	positions, err := tr.GetPositions(ctx)
	suite.Require().NoError(err)
	suite.Equal(5.0, positions[0].Quantity)
}

func (suite *PaperTestSuite) TestRejectWithoutPrice() {
	tr := NewPaperTrading(suite.cfg, suite.feed, logger.NewNop())

	ack, err := tr.SubmitOrder(context.Background(), order("r1", "NOPE", types.PurchaseTypeBuy, 1, types.OrderPurposeEntry))
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusRejected, ack.Status)
}

func (suite *PaperTestSuite) TestLimitOrderRestsThenFills() {
	suite.feed.SetPrice("AAPL", 105)
	tr := NewPaperTrading(suite.cfg, suite.feed, logger.NewNop())
	ctx := context.Background()

	limit := order("l1", "AAPL", types.PurchaseTypeBuy, 1, types.OrderPurposeEntry)
	limit.OrderType = types.OrderTypeLimit
	limit.Price = 100

	ack, err := tr.SubmitOrder(ctx, limit)
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusPending, ack.Status)

	suite.feed.SetPrice("AAPL", 99)

	o, err := tr.GetOrder(ctx, "AAPL", ack.OrderID)
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusFilled, o.Status)
	suite.Equal(100.0, o.AvgFillPrice)

	suite.True(codes.HasCode(tr.CancelOrder(ctx, "AAPL", ack.OrderID), codes.ErrCodeOrderFailed))
}

func (suite *PaperTestSuite) TestCancelResting() {
	suite.feed.SetPrice("AAPL", 105)
	tr := NewPaperTrading(suite.cfg, suite.feed, logger.NewNop())
	ctx := context.Background()

	limit := order("l2", "AAPL", types.PurchaseTypeBuy, 1, types.OrderPurposeEntry)
	limit.OrderType = types.OrderTypeLimit
	limit.Price = 100

	ack, err := tr.SubmitOrder(ctx, limit)
	suite.Require().NoError(err)
	suite.Require().NoError(tr.CancelOrder(ctx, "AAPL", ack.OrderID))

	o, err := tr.GetOrder(ctx, "AAPL", ack.OrderID)
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusCancelled, o.Status)
}

func (suite *PaperTestSuite) TestStatePersistsAcrossRestarts() {
	suite.feed.SetPrice("AAPL", 100)
	cfg := suite.cfg
	cfg.StateFile = filepath.Join(suite.T().TempDir(), "paper.json")
	ctx := context.Background()

	tr := NewPaperTrading(cfg, suite.feed, logger.NewNop())
	_, err := tr.SubmitOrder(ctx, order("p1", "AAPL", types.PurchaseTypeBuy, 3, types.OrderPurposeEntry))
	suite.Require().NoError(err)

	restored := NewPaperTrading(cfg, suite.feed, logger.NewNop())
	positions, err := restored.GetPositions(ctx)
	suite.Require().NoError(err)
	suite.Equal([]types.BrokerPosition{{Symbol: "AAPL", Quantity: 3, AvgEntryPrice: 100}}, positions)

	ack, err := restored.SubmitOrder(ctx, order("p1", "AAPL", types.PurchaseTypeBuy, 3, types.OrderPurposeEntry))
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusFilled, ack.Status)

	positions, err = restored.GetPositions(ctx)
	suite.Require().NoError(err)
	suite.Equal(3.0, positions[0].Quantity)
}

func (suite *PaperTestSuite) TestFactory() {
	_, err := New(config.BrokerConfig{MarketData: "paper", Trading: "paper", Paper: suite.cfg}, logger.NewNop())
	suite.Require().NoError(err)

	_, err = NewMarketData(config.BrokerConfig{MarketData: "iex"}, logger.NewNop())
	suite.True(codes.HasCode(err, codes.ErrCodeInvalidProvider))
}
