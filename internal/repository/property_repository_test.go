package repository

import (
	"context"
	"testing"

	"nadlan-chat-go/internal/model"
	"nadlan-chat-go/pkg/log"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func init() {
	log.Init("error", "console", "")
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func storedProperty(sourceURL string) model.Property {
	return model.Property{
		UserID:      "user-1",
		SessionID:   "sess-1",
		Address:     "דיזנגוף 100",
		City:        "תל אביב",
		Price:       5500,
		Rooms:       3,
		ListingType: "rent",
		SourceURL:   sourceURL,
		SourceSite:  "yad2.co.il",
	}
}

func TestUpsertBatchDeduplicatesOnUserAndSourceURL(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPropertyRepository(db)

	// 写入携带 (user_id, source_url) 冲突子句：重复保存同一 URL 覆盖更新已有行，
	// 第二次写入的字段值生效，不产生第二条记录
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `properties` .+ ON DUPLICATE KEY UPDATE " +
		".*`session_id`=VALUES\\(`session_id`\\)" +
		".*`address`=VALUES\\(`address`\\)" +
		".*`price`=VALUES\\(`price`\\)" +
		".*`listing_type`=VALUES\\(`listing_type`\\)" +
		".*`updated_at`=VALUES\\(`updated_at`\\)").
		WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectCommit()

	err := repo.UpsertBatch(context.Background(), []model.Property{
		storedProperty("https://yad2.co.il/item/1"),
		storedProperty("https://madlan.co.il/item/2"),
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchEmptyIsNoop(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPropertyRepository(db)

	// 空批次不触达数据库
	require.NoError(t, repo.UpsertBatch(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByUserOrdersByUpdatedAt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPropertyRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `properties` WHERE user_id = \\? ORDER BY updated_at DESC").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "source_url", "listing_type"}).
			AddRow(1, "user-1", "https://yad2.co.il/item/1", "rent"))

	properties, err := repo.FindByUser(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, properties, 1)
	require.Equal(t, "https://yad2.co.il/item/1", properties[0].SourceURL)
	require.NoError(t, mock.ExpectationsWereMet())
}
