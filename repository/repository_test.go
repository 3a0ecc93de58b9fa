package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/repository"
	testingutil "github.com/CHINMAYKUDALKAR/LINE-sub002/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withDB runs fn against a fresh migrated database, skipping when postgres is unreachable
func withDB(t *testing.T, fn func(t *testing.T, db *testingutil.TestDB)) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	db, err := testingutil.SetupTestDB()
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}
	t.Cleanup(func() { _ = db.TeardownTestDB() })
	fn(t, db)
}

func TestMessageLogRepository(t *testing.T) {
	withDB(t, func(t *testing.T, db *testingutil.TestDB) {
		ctx := context.Background()
		fx := testingutil.NewTestFixtures(db)
		repo := repository.NewMessageLogRepository(db.DB)

		tenant, err := fx.CreateTestTenant()
		require.NoError(t, err)
		other, err := fx.CreateTestTenant()
		require.NoError(t, err)
		candidate, err := fx.CreateTestCandidate(tenant.ID)
		require.NoError(t, err)
		msg, err := fx.CreateTestMessage(tenant.ID, candidate, models.MessageChannelSMS)
		require.NoError(t, err)

		t.Run("ByTenantAndID is tenant scoped", func(t *testing.T) {
			got, err := repo.ByTenantAndID(ctx, tenant.ID, msg.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, msg.UUID, got.UUID)

			got, err = repo.ByTenantAndID(ctx, other.ID, msg.ID)
			require.NoError(t, err)
			assert.Nil(t, got)
		})

		t.Run("MarkSent then ByExternalID", func(t *testing.T) {
			now := time.Now().UTC().Truncate(time.Second)
			require.NoError(t, repo.MarkSent(ctx, msg.ID, "SM123", now))

			got, err := repo.ByExternalID(ctx, "SM123")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, models.MessageStatusSent, got.Status)
			require.NotNil(t, got.SentAt)
		})

		t.Run("ResetForRetry only from FAILED", func(t *testing.T) {
			ok, err := repo.ResetForRetry(ctx, msg.ID)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, repo.MarkFailed(ctx, msg.ID, "provider down", time.Now().UTC()))
			failed, err := repo.ByID(ctx, msg.ID)
			require.NoError(t, err)
			assert.Equal(t, models.MessageStatusFailed, failed.Status)
			assert.Equal(t, 1, failed.RetryCount)
			assert.Equal(t, "provider down", failed.Metadata["error"])

			ok, err = repo.ResetForRetry(ctx, msg.ID)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = repo.ResetForRetry(ctx, msg.ID)
			require.NoError(t, err)
			assert.False(t, ok)
		})

		t.Run("CountGrouped by channel", func(t *testing.T) {
			_, err := fx.CreateTestMessage(tenant.ID, candidate, models.MessageChannelEmail)
			require.NoError(t, err)

			counts, err := repo.CountGrouped(ctx, models.MessageLogFilter{TenantID: &tenant.ID}, repository.MessageGroupByChannel)
			require.NoError(t, err)
			byKey := map[string]int64{}
			for _, c := range counts {
				byKey[c.Key] = c.Count
			}
			assert.Equal(t, int64(1), byKey["SMS"])
			assert.Equal(t, int64(1), byKey["EMAIL"])

			_, err = repo.CountGrouped(ctx, models.MessageLogFilter{}, repository.MessageGroupBy("body"))
			assert.Error(t, err)
		})
	})
}

func TestScheduledMessageRepository(t *testing.T) {
	withDB(t, func(t *testing.T, db *testingutil.TestDB) {
		ctx := context.Background()
		fx := testingutil.NewTestFixtures(db)
		repo := repository.NewScheduledMessageRepository(db.DB)

		tenant, err := fx.CreateTestTenant()
		require.NoError(t, err)

		now := time.Now().UTC()
		newRow := func(at time.Time) *models.ScheduledMessage {
			row := &models.ScheduledMessage{
				TenantID:      tenant.ID,
				Channel:       models.MessageChannelEmail,
				RecipientType: models.RecipientTypeExternal,
				RecipientID:   "someone@example.com",
				ScheduledFor:  at,
				Status:        models.ScheduledMessageStatusPending,
				Payload:       models.ScheduledPayload{Body: "hello"},
			}
			require.NoError(t, repo.Save(ctx, row))
			return row
		}
		due := newRow(now.Add(-time.Minute))
		later := newRow(now.Add(time.Hour))

		rows, err := repo.ListDue(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, due.ID, rows[0].ID)
		assert.Equal(t, "hello", rows[0].Payload.Body)

		ok, err := repo.MarkSent(ctx, due.ID, 42, now)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.MarkFailed(ctx, due.ID, "late", now)
		require.NoError(t, err)
		assert.False(t, ok, "terminal rows never transition again")

		ok, err = repo.Cancel(ctx, tenant.ID+1, later.ID, now)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = repo.Cancel(ctx, tenant.ID, later.ID, now)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.ByTenantAndID(ctx, tenant.ID, later.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ScheduledMessageStatusCancelled, got.Status)
	})
}

func TestTemplateRepository_ByName(t *testing.T) {
	withDB(t, func(t *testing.T, db *testingutil.TestDB) {
		ctx := context.Background()
		fx := testingutil.NewTestFixtures(db)
		repo := repository.NewTemplateRepository(db.DB)

		tenant, err := fx.CreateTestTenant()
		require.NoError(t, err)
		tpl, err := fx.CreateTestTemplate(tenant.ID, "welcome", models.MessageChannelSMS, "Hi {{candidate.first_name}}")
		require.NoError(t, err)

		got, err := repo.ByName(ctx, tenant.ID, "welcome", models.MessageChannelSMS)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, tpl.ID, got.ID)

		got, err = repo.ByName(ctx, tenant.ID, "welcome", models.MessageChannelEmail)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
