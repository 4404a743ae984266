package trader

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/bitage/bitage/internal/domain"
)

const quantityPrecision = 4

// BinanceTrader places spot market orders on Binance.
type BinanceTrader struct {
	client *binance.Client
}

func NewBinanceTrader(client *binance.Client) *BinanceTrader {
	return &BinanceTrader{client: client}
}

// PlaceOrder submits a market order. Binance rejects a duplicate client order
// id, in which case the existing order is looked up and returned, keeping the
// call idempotent.
func (t *BinanceTrader) PlaceOrder(ctx context.Context, side domain.Side, pair domain.Pair,
	quantity decimal.Decimal, clientOrderID string) (Fill, error) {

	quantity = quantity.RoundFloor(quantityPrecision)

	sideType := binance.SideTypeBuy
	if side == domain.SideSell {
		sideType = binance.SideTypeSell
	}

	res, err := t.client.NewCreateOrderService().Symbol(pair.Symbol()).
		Side(sideType).Type(binance.OrderTypeMarket).
		Quantity(quantity.String()).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		if apiErr, ok := err.(*common.APIError); ok && apiErr.Code == -2010 {
			// duplicate client order id, the order already exists
			return t.lookup(ctx, pair, clientOrderID)
		}
		return Fill{}, errors.Wrapf(domain.ErrAdapterUnavailable, "binance order failed: %v", err)
	}

	executed, err := decimal.NewFromString(res.ExecutedQuantity)
	if err != nil {
		return Fill{}, errors.Wrap(err, "parse executed quantity")
	}

	avgPrice := decimal.Zero
	if len(res.Fills) > 0 {
		total := decimal.Zero
		qty := decimal.Zero
		for _, f := range res.Fills {
			p, perr := decimal.NewFromString(f.Price)
			q, qerr := decimal.NewFromString(f.Quantity)
			if perr != nil || qerr != nil {
				continue
			}
			total = total.Add(p.Mul(q))
			qty = qty.Add(q)
		}
		if qty.GreaterThan(decimal.Zero) {
			avgPrice = total.Div(qty)
		}
	}

	return Fill{
		OrderID:   res.ClientOrderID,
		FilledQty: executed,
		AvgPrice:  avgPrice,
	}, nil
}

func (t *BinanceTrader) lookup(ctx context.Context, pair domain.Pair, clientOrderID string) (Fill, error) {
	order, err := t.client.NewGetOrderService().
		Symbol(pair.Symbol()).
		OrigClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return Fill{}, errors.Wrapf(domain.ErrAdapterUnavailable, "binance order lookup failed: %v", err)
	}

	executed, err := decimal.NewFromString(order.ExecutedQuantity)
	if err != nil {
		return Fill{}, errors.Wrap(err, "parse executed quantity")
	}

	avgPrice := decimal.Zero
	cumQuote, err := decimal.NewFromString(order.CummulativeQuoteQuantity)
	if err == nil && executed.GreaterThan(decimal.Zero) {
		avgPrice = cumQuote.Div(executed)
	}

	return Fill{OrderID: order.ClientOrderID, FilledQty: executed, AvgPrice: avgPrice}, nil
}
