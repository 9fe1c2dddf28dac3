package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"SecureAccess/api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.AuthLog{}))
	return NewStore(db), db
}

type blockingAppender struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Entry
}

func (b *blockingAppender) Append(_ context.Context, e Entry) error {
	<-b.release
	b.mu.Lock()
	b.got = append(b.got, e)
	b.mu.Unlock()
	return nil
}

type failingAppender struct{ calls int }

func (f *failingAppender) Append(context.Context, Entry) error {
	f.calls++
	return errors.New("disk full")
}

func TestStore_QueryPaginatesNewestFirst(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, Entry{
			Principal: fmt.Sprintf("user%d", i%2),
			Step:      StepCredentials,
			Success:   i%2 == 0,
			Location:  json.RawMessage(`{"lat":4.6,"lng":-74.1}`),
			At:        base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, err := store.Query(ctx, Filter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Entries, 2)
	assert.True(t, page.Entries[0].CreatedAt.After(page.Entries[1].CreatedAt))
	assert.Equal(t, "password", page.Entries[0].AuthMethod)

	last, err := store.Query(ctx, Filter{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, last.Entries, 1)

	failed := false
	onlyFailures, err := store.Query(ctx, Filter{Principal: "USER1", Success: &failed})
	require.NoError(t, err)
	assert.Equal(t, int64(2), onlyFailures.Total)
	for _, e := range onlyFailures.Entries {
		require.NotNil(t, e.Username)
		assert.Equal(t, "user1", *e.Username)
		assert.False(t, e.Success)
	}
}

func TestStore_AppendKeepsNullableColumnsNull(t *testing.T) {
	store, db := newTestStore(t)
	require.NoError(t, store.Append(context.Background(), Entry{Step: StepLocation, Success: false, Error: "outside permitted area"}))

	var row models.AuthLog
	require.NoError(t, db.First(&row).Error)
	assert.Nil(t, row.Username)
	assert.Nil(t, row.DeviceFingerprint)
	require.NotNil(t, row.ErrorMessage)
	assert.Equal(t, "outside permitted area", *row.ErrorMessage)
	assert.False(t, row.CreatedAt.IsZero())
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("a", 510) + "日本"
	out := truncate(s, 512)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, strings.Repeat("a", 510), out)

	assert.Equal(t, "short", truncate("short", 512))
	assert.True(t, utf8.ValidString(truncate("bad\xff\xfeagent", 512)))
}

func TestStore_AppendLongMultibyteUserAgent(t *testing.T) {
	store, db := newTestStore(t)
	ua := strings.Repeat("é", 400)
	require.NoError(t, store.Append(context.Background(), Entry{Principal: "alice", Step: StepCredentials, UserAgent: ua, At: time.Now()}))

	var row models.AuthLog
	require.NoError(t, db.Take(&row).Error)
	assert.LessOrEqual(t, len(row.UserAgent), 512)
	assert.True(t, utf8.ValidString(row.UserAgent))
}

func TestStore_QueryTreatsWildcardsLiterally(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"a_c", "abc", "50%off"} {
		require.NoError(t, store.Append(ctx, Entry{Principal: name, Step: StepCredentials, At: time.Now()}))
	}

	page, err := store.Query(ctx, Filter{Principal: "a_c"})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	assert.Equal(t, "a_c", *page.Entries[0].Username)

	page, err = store.Query(ctx, Filter{Principal: "%"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestAsyncRecorder_DrainsOnClose(t *testing.T) {
	store, db := newTestStore(t)
	rec := NewAsyncRecorder(store, 16, nil)

	for i := 0; i < 10; i++ {
		rec.Record(context.Background(), Entry{Principal: "alice", Step: StepDevice, Success: true})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rec.Close(ctx))

	var n int64
	require.NoError(t, db.Model(&models.AuthLog{}).Count(&n).Error)
	assert.Equal(t, int64(10), n)

	assert.NotPanics(t, func() {
		rec.Record(context.Background(), Entry{Principal: "late", Step: StepDevice})
	})
	assert.NoError(t, rec.Close(ctx))
}

func TestAsyncRecorder_DropsWhenQueueFull(t *testing.T) {
	appender := &blockingAppender{release: make(chan struct{})}
	rec := NewAsyncRecorder(appender, 1, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			rec.Record(context.Background(), Entry{Principal: "alice", Step: StepCredentials})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(appender.release)
	require.NoError(t, rec.Close(context.Background()))
	appender.mu.Lock()
	defer appender.mu.Unlock()
	assert.Less(t, len(appender.got), 50)
	assert.GreaterOrEqual(t, len(appender.got), 1)
}

func TestSyncRecorder_SwallowsErrors(t *testing.T) {
	appender := &failingAppender{}
	rec := NewSyncRecorder(appender, nil)
	assert.NotPanics(t, func() {
		rec.Record(context.Background(), Entry{Step: StepLocation})
	})
	assert.Equal(t, 1, appender.calls)
}

func TestMemoryRecorder(t *testing.T) {
	var rec MemoryRecorder
	rec.Record(context.Background(), Entry{Step: StepDevice})
	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, StepDevice, entries[0].Step)
}
