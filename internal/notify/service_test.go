package notify

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/launchthatbrand/portal-api/models"
)

type recordingPusher struct {
	pushed []*models.Notification
}

func (r *recordingPusher) Push(n *models.Notification) { r.pushed = append(r.pushed, n) }

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Notification{}, &models.NotificationPreference{}))
	return db
}

func TestCreateInsertsUnreadByDefault(t *testing.T) {
	db := openTestDB(t)
	pusher := &recordingPusher{}
	svc := NewService(db, pusher)

	n, err := svc.Create(CreateArgs{
		UserID: 1,
		Type:   models.NotificationTypeEventInvite,
		Title:  "Team sync",
	})
	require.NoError(t, err)
	assert.False(t, n.Read)
	assert.Equal(t, "You have been invited to an event.", n.Content)
	require.Len(t, pusher.pushed, 1)
	assert.Equal(t, n.ID, pusher.pushed[0].ID)
}

func TestCreateRespectsDisabledPreference(t *testing.T) {
	db := openTestDB(t)
	pusher := &recordingPusher{}
	svc := NewService(db, pusher)

	require.NoError(t, svc.SetPreference(1, models.NotificationTypeEventInvite, models.PreferenceDisabled))

	n, err := svc.Create(CreateArgs{
		UserID: 1,
		Type:   models.NotificationTypeEventInvite,
		Title:  "Team sync",
	})
	require.NoError(t, err)
	// History is preserved but the row arrives already read and is not pushed.
	assert.True(t, n.Read)
	assert.Empty(t, pusher.pushed)

	var count int64
	db.Model(&models.Notification{}).Where("user_id = ?", 1).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCreateTreatsEnabledAndUnsetAlike(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)

	require.NoError(t, svc.SetPreference(1, models.NotificationTypeMention, models.PreferenceEnabled))

	for _, userID := range []uint{1, 2} { // user 2 has no preference row
		n, err := svc.Create(CreateArgs{
			UserID: userID,
			Type:   models.NotificationTypeMention,
			Title:  "Mentioned",
		})
		require.NoError(t, err)
		assert.False(t, n.Read, "user %d", userID)
	}
}

func TestCreateKeepsCallerContent(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)

	n, err := svc.Create(CreateArgs{
		UserID:  1,
		Type:    models.NotificationTypePaymentSuccess,
		Title:   "Paid",
		Content: "Invoice #42 settled.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Invoice #42 settled.", n.Content)
}

func TestBatchCreateIsIndependentPerRecipient(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)

	res := svc.BatchCreate([]uint{1, 2, 0, 2, 3}, CreateArgs{
		Type:  models.NotificationTypeSystemAnnouncement,
		Title: "Maintenance window",
	})
	// Zero ids and duplicates are skipped, everyone else is inserted.
	assert.Equal(t, 3, res.Created)
	assert.Empty(t, res.Errors)

	var count int64
	db.Model(&models.Notification{}).Count(&count)
	assert.Equal(t, int64(3), count)
}

func TestMarkAllReadAndDeleteAll(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)

	for i := 0; i < 3; i++ {
		_, err := svc.Create(CreateArgs{UserID: 1, Type: models.NotificationTypeMessage, Title: "m"})
		require.NoError(t, err)
	}
	_, err := svc.Create(CreateArgs{UserID: 2, Type: models.NotificationTypeMessage, Title: "m"})
	require.NoError(t, err)

	updated, err := svc.MarkAllRead(1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)

	var unread int64
	db.Model(&models.Notification{}).Where("user_id = ? AND read = ?", 1, false).Count(&unread)
	assert.Zero(t, unread)

	deleted, err := svc.DeleteAll(1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	// The other user's rows are untouched.
	var remaining int64
	db.Model(&models.Notification{}).Count(&remaining)
	assert.Equal(t, int64(1), remaining)
}

func TestMarkReadEnforcesOwnership(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)

	n, err := svc.Create(CreateArgs{UserID: 1, Type: models.NotificationTypeMessage, Title: "m"})
	require.NoError(t, err)

	err = svc.MarkRead(2, n.ID, true)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, svc.MarkRead(1, n.ID, true))
}
