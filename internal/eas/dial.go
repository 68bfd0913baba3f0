package eas

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/proofmark/proofmark/internal/config"
)

// Dial connects to the node in cfg and returns a Client for its EAS
// deployment. Close the returned ethclient when done.
func Dial(ctx context.Context, cfg config.ChainConfig, logger *slog.Logger) (*Client, *ethclient.Client, error) {
	schema, err := cfg.Schema()
	if err != nil {
		return nil, nil, fmt.Errorf("eas: schema uid: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	ec, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("eas: dial %s: %w", cfg.RPCURL, err)
	}

	client := NewClient(ec, Options{
		EAS:            common.HexToAddress(cfg.EASAddress),
		SchemaRegistry: common.HexToAddress(cfg.SchemaRegistryAddress),
		Schema:         schema,
		FromBlock:      cfg.FromBlock,
		Logger:         logger,
	})
	return client, ec, nil
}
