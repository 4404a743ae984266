package clients

import (
	"github.com/adshao/go-binance/v2"
)

// SimulateClient serves real market prices through the Binance public API
// while order execution stays in-process.
type SimulateClient struct {
	binanceClient *binance.Client
}

// NewSimulateClient creates a keyless client for public data only.
func NewSimulateClient() *SimulateClient {
	return &SimulateClient{
		binanceClient: binance.NewClient("", ""),
	}
}

// GetBinanceClient returns the underlying Binance client.
func (c *SimulateClient) GetBinanceClient() *binance.Client {
	return c.binanceClient
}
