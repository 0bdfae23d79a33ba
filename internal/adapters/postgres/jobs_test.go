package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ostraco/sendonce/internal/adapters/postgres"
	"github.com/ostraco/sendonce/internal/relay"
	"github.com/ostraco/sendonce/internal/testhelpers"
)

type JobRepositoryTestSuite struct {
	suite.Suite
	testDB *testhelpers.TestDatabase
	repo   *postgres.JobRepository
}

func TestJobRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	suite.Run(t, new(JobRepositoryTestSuite))
}

func (suite *JobRepositoryTestSuite) SetupSuite() {
	suite.testDB = testhelpers.SetupTestDatabase(suite.T())
	suite.repo = postgres.NewJobRepository(suite.testDB.DB)
}

func (suite *JobRepositoryTestSuite) TearDownSuite() {
	suite.testDB.Cleanup(suite.T())
}

func (suite *JobRepositoryTestSuite) SetupTest() {
	suite.testDB.CleanTables(suite.T())
}

func (suite *JobRepositoryTestSuite) TestCreateAndFindJob() {
	t := suite.T()
	ctx := context.Background()

	job := relay.NewJob(testhelpers.NewRequestID(), testhelpers.DefaultPayload())
	require.NoError(t, suite.repo.CreateJob(ctx, job))

	found, err := suite.repo.FindJobByRequestID(ctx, job.RequestID)
	require.NoError(t, err)

	assert.Equal(t, job.ID, found.ID)
	assert.Equal(t, job.RequestID, found.RequestID)
	assert.Equal(t, relay.StatusPending, found.Status)
	assert.Equal(t, 0, found.Attempts)
	assert.Nil(t, found.LastError)
	assert.Nil(t, found.NextRetryAt)
	assert.JSONEq(t, string(testhelpers.DefaultPayload()), string(found.Payload))
}

func (suite *JobRepositoryTestSuite) TestCreateJobDuplicateRequestID() {
	t := suite.T()
	ctx := context.Background()

	requestID := testhelpers.NewRequestID()
	require.NoError(t, suite.repo.CreateJob(ctx, relay.NewJob(requestID, testhelpers.DefaultPayload())))

	err := suite.repo.CreateJob(ctx, relay.NewJob(requestID, testhelpers.DefaultPayload()))
	require.Error(t, err)
	assert.ErrorIs(t, err, relay.ErrJobExists)
}

func (suite *JobRepositoryTestSuite) TestFindJobNotFound() {
	t := suite.T()

	_, err := suite.repo.FindJobByRequestID(context.Background(), "missing")
	assert.ErrorIs(t, err, relay.ErrJobNotFound)
}

func (suite *JobRepositoryTestSuite) TestUpdateJob() {
	t := suite.T()
	ctx := context.Background()

	job := relay.NewJob(testhelpers.NewRequestID(), testhelpers.DefaultPayload())
	require.NoError(t, suite.repo.CreateJob(ctx, job))

	now := time.Now()
	receiptStatus := "received"
	job.Status = relay.StatusDelivered
	job.Attempts = 2
	job.ReceiptStatus = &receiptStatus
	job.DeliveredAt = &now
	require.NoError(t, suite.repo.UpdateJob(ctx, job))

	found, err := suite.repo.FindJobByRequestID(ctx, job.RequestID)
	require.NoError(t, err)
	assert.Equal(t, relay.StatusDelivered, found.Status)
	assert.Equal(t, 2, found.Attempts)
	require.NotNil(t, found.ReceiptStatus)
	assert.Equal(t, "received", *found.ReceiptStatus)
	require.NotNil(t, found.DeliveredAt)
	assert.WithinDuration(t, now, *found.DeliveredAt, time.Second)
}

func (suite *JobRepositoryTestSuite) TestUpdateMissingJob() {
	t := suite.T()

	job := relay.NewJob(testhelpers.NewRequestID(), testhelpers.DefaultPayload())
	err := suite.repo.UpdateJob(context.Background(), job)
	assert.ErrorIs(t, err, relay.ErrJobNotFound)
}

func (suite *JobRepositoryTestSuite) TestFindDueJobs() {
	t := suite.T()
	ctx := context.Background()

	// Due immediately: never attempted, no retry time yet.
	fresh := relay.NewJob(testhelpers.NewRequestID(), testhelpers.DefaultPayload())
	require.NoError(t, suite.repo.CreateJob(ctx, fresh))

	// Due: retry time in the past.
	due := testhelpers.PendingJob(testhelpers.NewRequestID())
	require.NoError(t, suite.repo.CreateJob(ctx, due))

	// Not due: retry time in the future.
	later := relay.NewJob(testhelpers.NewRequestID(), testhelpers.DefaultPayload())
	future := time.Now().Add(time.Hour)
	later.NextRetryAt = &future
	require.NoError(t, suite.repo.CreateJob(ctx, later))

	// Not due: already finished.
	done := testhelpers.DeliveredJob(testhelpers.NewRequestID())
	require.NoError(t, suite.repo.CreateJob(ctx, done))

	jobs, err := suite.repo.FindDueJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	// NULL retry times sort first.
	assert.Equal(t, fresh.RequestID, jobs[0].RequestID)
	assert.Equal(t, due.RequestID, jobs[1].RequestID)

	limited, err := suite.repo.FindDueJobs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func (suite *JobRepositoryTestSuite) TestCountPending() {
	t := suite.T()
	ctx := context.Background()

	require.NoError(t, suite.repo.CreateJob(ctx, relay.NewJob(testhelpers.NewRequestID(), testhelpers.DefaultPayload())))
	require.NoError(t, suite.repo.CreateJob(ctx, relay.NewJob(testhelpers.NewRequestID(), testhelpers.DefaultPayload())))
	require.NoError(t, suite.repo.CreateJob(ctx, testhelpers.DeliveredJob(testhelpers.NewRequestID())))

	n, err := suite.repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func (suite *JobRepositoryTestSuite) TestDeleteFinishedJobs() {
	t := suite.T()
	ctx := context.Background()

	aged := testhelpers.DeliveredJob(testhelpers.NewRequestID())
	require.NoError(t, suite.repo.CreateJob(ctx, aged))

	recent := testhelpers.DeliveredJob(testhelpers.NewRequestID())
	require.NoError(t, suite.repo.CreateJob(ctx, recent))

	pendingButOld := relay.NewJob(testhelpers.NewRequestID(), testhelpers.DefaultPayload())
	require.NoError(t, suite.repo.CreateJob(ctx, pendingButOld))

	_, err := suite.testDB.DB.Pool.Exec(ctx,
		"UPDATE relay_jobs SET updated_at = NOW() - INTERVAL '48 hours' WHERE id = $1 OR id = $2",
		aged.ID, pendingButOld.ID)
	require.NoError(t, err)

	deleted, err := suite.repo.DeleteFinishedJobs(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// The recent finished job and the old pending job both survive.
	_, err = suite.repo.FindJobByRequestID(ctx, recent.RequestID)
	assert.NoError(t, err)
	_, err = suite.repo.FindJobByRequestID(ctx, pendingButOld.RequestID)
	assert.NoError(t, err)
	_, err = suite.repo.FindJobByRequestID(ctx, aged.RequestID)
	assert.ErrorIs(t, err, relay.ErrJobNotFound)
}
