package mocks

import (
	"bytes"
	"context"
	_ "embed"

	"github.com/Billy-Davies-2/draftkit/internal/loader"
	"github.com/Billy-Davies-2/draftkit/internal/logger"
	"github.com/Billy-Davies-2/draftkit/internal/models"
)

var (
	//go:embed sampledata/players.json
	samplePlayers []byte
	//go:embed sampledata/meta.json
	sampleMeta []byte
)

// MockClickHouseClient serves a bundled projection set for local development.
// Every call decodes a fresh copy.
type MockClickHouseClient struct{}

// NewMockClickHouseClient creates a mock ClickHouse client
func NewMockClickHouseClient() *MockClickHouseClient {
	logger.Info("Using MOCK ClickHouse (bundled sample projections) for local development")
	return &MockClickHouseClient{}
}

func (m *MockClickHouseClient) Players(ctx context.Context) ([]models.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return loader.DecodePlayers(bytes.NewReader(samplePlayers))
}

func (m *MockClickHouseClient) Meta(ctx context.Context) (models.Meta, error) {
	if err := ctx.Err(); err != nil {
		return models.Meta{}, err
	}
	return loader.DecodeMeta(bytes.NewReader(sampleMeta))
}

// Ping always succeeds.
func (m *MockClickHouseClient) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for mock
func (m *MockClickHouseClient) Close() error {
	return nil
}
