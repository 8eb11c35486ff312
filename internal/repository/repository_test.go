package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"boxing-locker-go/internal/model"
	"boxing-locker-go/pkg/database"
)

// openTestDB 为每个测试打开独立的内存库。单连接保证所有语句看到同一个库。
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func strPtr(s string) *string { return &s }

func TestSessionRepository_GetOrCreateIsIdempotent(t *testing.T) {
	repo := NewSessionRepository(openTestDB(t))
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, "test-1")
	require.NoError(t, err)
	second, err := repo.GetOrCreate(ctx, "test-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "test-1", second.SessionID)
}

func TestSessionRepository_HistoryAndListSessions(t *testing.T) {
	repo := NewSessionRepository(openTestDB(t))
	ctx := context.Background()

	_, err := repo.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, repo.AppendMessage(ctx, &model.ChatMessage{SessionID: "s1", Role: model.RoleUser, Content: "hi"}))
	require.NoError(t, repo.AppendMessage(ctx, &model.ChatMessage{
		SessionID:            "s1",
		Role:                 model.RoleAssistant,
		Content:              "hello",
		VideoRecommendations: datatypes.JSONSlice[string]{"jab basics"},
	}))

	history, err := repo.History(ctx, "s1", 50)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Content)
	assert.Equal(t, "hello", history[1].Content)
	assert.Equal(t, []string{"jab basics"}, []string(history[1].VideoRecommendations))

	sessions, err := repo.ListSessions(ctx, 50)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].SessionID)
	assert.EqualValues(t, 2, sessions[0].MessageCount)
	require.NotNil(t, sessions[0].FirstMessage)
	assert.Equal(t, "hi", *sessions[0].FirstMessage)
}

func TestSessionRepository_UpdateCategoryAndDelete(t *testing.T) {
	db := openTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	_, err := repo.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, repo.AppendMessage(ctx, &model.ChatMessage{SessionID: "s1", Role: model.RoleUser, Content: "hi"}))
	require.NoError(t, repo.UpdateCategory(ctx, "s1", model.TopicTactics))

	session, err := repo.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, session.Category)
	assert.Equal(t, model.TopicTactics, *session.Category)

	require.NoError(t, repo.Delete(ctx, "s1"))
	require.NoError(t, repo.Delete(ctx, "does-not-exist"))

	var count int64
	require.NoError(t, db.Model(&model.ChatMessage{}).Count(&count).Error)
	assert.Zero(t, count)
	sessions, err := repo.ListSessions(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func seedVideos(t *testing.T, repo VideoRepository) {
	t.Helper()
	videos := []model.VideoRecord{
		{VideoID: "aaaaaaaaaa1", VideoTitle: "How To Slip A Jab", Topic: model.TopicTechnique, Subtopic: strPtr("Defence"), Tags: datatypes.JSONSlice[string]{"slip", "jab"}, ViewCount: 500},
		{VideoID: "aaaaaaaaaa2", VideoTitle: "Jab Basics", Topic: model.TopicTechnique, Subtopic: strPtr("Jab"), Tags: datatypes.JSONSlice[string]{"jab"}, ViewCount: 900},
		{VideoID: "aaaaaaaaaa3", VideoTitle: "Cutting Off The Ring", Topic: model.TopicTactics, Subtopic: strPtr("Ring Generalship"), Tags: datatypes.JSONSlice[string]{"footwork"}, ViewCount: 300},
		{VideoID: "aaaaaaaaaa4", VideoTitle: "Staying Calm Before A Fight", Topic: model.TopicMindset, Tags: datatypes.JSONSlice[string]{"nerves"}, ViewCount: 100},
	}
	require.NoError(t, repo.Upsert(context.Background(), videos))
}

func ids(videos []model.VideoRecord) []string {
	out := make([]string, 0, len(videos))
	for _, v := range videos {
		out = append(out, v.VideoID)
	}
	return out
}

func TestVideoRepository_SearchStructuredTiers(t *testing.T) {
	repo := NewVideoRepository(openTestDB(t))
	seedVideos(t, repo)
	ctx := context.Background()

	// 最严格的一层有结果时直接返回
	got, err := repo.SearchStructured(ctx, model.TopicTechnique, "defence", []string{"slip"}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaaaaaaaa1"}, ids(got))

	// 分类+子主题无结果，回退到分类+标签
	got, err = repo.SearchStructured(ctx, model.TopicTechnique, "uppercut", []string{"jab"}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaaaaaaaa2", "aaaaaaaaaa1"}, ids(got))

	// 只有标签
	got, err = repo.SearchStructured(ctx, "", "", []string{"footwork"}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaaaaaaaa3"}, ids(got))

	// 全部不命中时回退到无过滤，按播放量排序
	got, err = repo.SearchStructured(ctx, "Nutrition", "", nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaaaaaaaa2", "aaaaaaaaaa1"}, ids(got))
}

func TestVideoRepository_SearchText(t *testing.T) {
	repo := NewVideoRepository(openTestDB(t))
	seedVideos(t, repo)
	ctx := context.Background()

	got, err := repo.SearchText(ctx, []string{"jab"}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaaaaaaaa2", "aaaaaaaaaa1"}, ids(got))

	got, err = repo.SearchText(ctx, []string{"ring", "calm"}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaaaaaaaa3", "aaaaaaaaaa4"}, ids(got))

	got, err = repo.SearchText(ctx, []string{"100%"}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = repo.SearchText(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaaaaaaaa2"}, ids(got))
}

func TestVideoRepository_FindAndUpsert(t *testing.T) {
	repo := NewVideoRepository(openTestDB(t))
	seedVideos(t, repo)
	ctx := context.Background()

	missing, err := repo.FindByVideoID(ctx, "zzzzzzzzzzz")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.Upsert(ctx, []model.VideoRecord{{VideoID: "aaaaaaaaaa4", VideoTitle: "Beating Fight Nerves", Topic: model.TopicMindset, ViewCount: 150}}))

	v, err := repo.FindByVideoID(ctx, "aaaaaaaaaa4")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "Beating Fight Nerves", v.VideoTitle)
	assert.EqualValues(t, 150, v.ViewCount)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestLeadRepository_UpsertIsIdempotent(t *testing.T) {
	repo := NewLeadRepository(openTestDB(t))
	ctx := context.Background()
	submitted := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, &model.CoachingLead{LeadID: "lead-1", Category: model.TopicTraining, Question: "v1", SubmittedAt: submitted}))
	require.NoError(t, repo.Upsert(ctx, &model.CoachingLead{LeadID: "lead-1", Category: model.TopicTraining, Question: "v2", SubmittedAt: submitted}))

	lead, err := repo.FindByLeadID(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", lead.Question)

	_, err = repo.FindByLeadID(ctx, "lead-2")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
