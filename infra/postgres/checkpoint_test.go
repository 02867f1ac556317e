package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/0m3kk/taskstream/infra/postgres"
	"github.com/0m3kk/taskstream/testutil"
)

type CheckpointSuite struct {
	testutil.DBIntegrationSuite
	store *postgres.CheckpointStore
}

func TestCheckpointSuite(t *testing.T) {
	suite.Run(t, new(CheckpointSuite))
}

func (s *CheckpointSuite) SetupTest() {
	db := &postgres.DB{Pool: s.Pool}
	s.store = postgres.NewCheckpointStore(db)
	s.TruncateTables("relay_checkpoints")
}

func (s *CheckpointSuite) TestLoad_FreshSubscriberStartsAtZero() {
	position, err := s.store.Load(context.Background(), "new-subscriber")
	s.Require().NoError(err)
	s.Equal(int64(0), position)
}

func (s *CheckpointSuite) TestSave_UpsertsPosition() {
	ctx := context.Background()

	s.Require().NoError(s.store.Save(ctx, "relay-1", 42))
	s.Require().NoError(s.store.Save(ctx, "relay-1", 97))
	s.Require().NoError(s.store.Save(ctx, "relay-2", 7))

	position, err := s.store.Load(ctx, "relay-1")
	s.Require().NoError(err)
	s.Equal(int64(97), position)

	position, err = s.store.Load(ctx, "relay-2")
	s.Require().NoError(err)
	s.Equal(int64(7), position)
}
