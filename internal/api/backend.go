package relayapi

import (
	"context"

	"github.com/ponte-cripto/notus-relay/internal/app/relay"
)

// Relay 定义业务层接口，HTTP handler 通过它与 provider 交互。
type Relay interface {
	RegisterWallet(ctx context.Context, eoa string) (*relay.Result, error)
	LookupWallet(ctx context.Context, eoa string) (*relay.Result, error)
	Portfolio(ctx context.Context, walletAddress string) (*relay.Result, error)
	History(ctx context.Context, walletAddress string) (*relay.Result, error)
	StartKYC(ctx context.Context, profile relay.KYCProfile) (*relay.Result, error)
	KYCStatus(ctx context.Context, sessionID string) (*relay.Result, error)
	ProcessKYC(ctx context.Context, sessionID string) (*relay.Result, error)
	DepositQuote(ctx context.Context, walletAddress string) (*relay.Result, error)
}
