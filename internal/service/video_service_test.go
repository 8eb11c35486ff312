package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"boxing-locker-go/internal/model"
	"boxing-locker-go/internal/repository"
)

type fakeIndex struct {
	searchErr error
	synced    []model.VideoRecord
	searched  [][]string
}

func (f *fakeIndex) Search(_ context.Context, words []string, _ int) ([]model.VideoRecord, error) {
	f.searched = append(f.searched, words)
	return nil, f.searchErr
}

func (f *fakeIndex) Sync(_ context.Context, videos []model.VideoRecord) error {
	f.synced = videos
	return nil
}

type memoryCache struct {
	entries map[string][]model.VideoRecord
	getErr  error
}

func (m *memoryCache) key(words []string, limit int) string {
	return fmt.Sprintf("%d:%s", limit, strings.Join(words, "+"))
}

func (m *memoryCache) Get(_ context.Context, words []string, limit int) ([]model.VideoRecord, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.entries[m.key(words, limit)]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, words []string, limit int, videos []model.VideoRecord) error {
	if m.entries == nil {
		m.entries = make(map[string][]model.VideoRecord)
	}
	m.entries[m.key(words, limit)] = videos
	return nil
}

func newTestVideoService(t *testing.T, cache repository.VideoCacheRepository, index VideoIndex) (VideoService, repository.VideoRepository) {
	t.Helper()
	repo := repository.NewVideoRepository(openTestDB(t))
	svc := NewVideoService(repo, cache, index)
	_, err := svc.Import(context.Background(), []model.VideoRecord{
		{VideoID: "jabjabjab01", VideoTitle: "Jab Basics", Topic: model.TopicTechnique, Tags: datatypes.JSONSlice[string]{"jab"}, ViewCount: 10},
		{VideoID: "slipslip001", VideoTitle: "Slipping Punches", Topic: model.TopicTechnique, ViewCount: 5},
	})
	require.NoError(t, err)
	return svc, repo
}

func TestTokenizeQuery(t *testing.T) {
	assert.Equal(t, []string{"how", "slip", "jab"}, TokenizeQuery("How do I slip a JAB properly"))
	assert.Empty(t, TokenizeQuery("a to"))
}

func TestValidVideoID(t *testing.T) {
	assert.True(t, ValidVideoID("dQw4w9WgXcQ"))
	assert.True(t, ValidVideoID("a-b_c-d_e-f"))
	assert.False(t, ValidVideoID("short"))
	assert.False(t, ValidVideoID("dQw4w9WgXcQ1"))
	assert.False(t, ValidVideoID("dQw4w9WgX?Q"))
}

func TestVideoService_GetByID(t *testing.T) {
	svc, repo := newTestVideoService(t, nil, nil)
	ctx := context.Background()

	_, err := svc.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidVideoID)

	v, err := svc.GetByID(ctx, "zzzzzzzzzzz")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = svc.GetByID(ctx, "jabjabjab01")
	require.NoError(t, err)
	require.NotNil(t, v)
	require.NotNil(t, v.Thumbnail)
	assert.Equal(t, "https://img.youtube.com/vi/jabjabjab01/hqdefault.jpg", *v.Thumbnail)
	require.NotNil(t, v.URL)
	assert.Equal(t, "https://www.youtube.com/watch?v=jabjabjab01", *v.URL)

	// 离线采集写入的行没有经过 Import，缩略图与链接为空
	require.NoError(t, repo.Upsert(ctx, []model.VideoRecord{{VideoID: "abcdefghijk", VideoTitle: "Hooks", Topic: model.TopicTechnique}}))
	v, err = svc.GetByID(ctx, "abcdefghijk")
	require.NoError(t, err)
	require.NotNil(t, v)
	require.NotNil(t, v.Thumbnail)
	assert.Equal(t, "https://img.youtube.com/vi/abcdefghijk/hqdefault.jpg", *v.Thumbnail)
	require.NotNil(t, v.URL)
	assert.Equal(t, "https://www.youtube.com/watch?v=abcdefghijk", *v.URL)

	// 已有的值保持不变
	thumb := "https://cdn.example.com/hooks.jpg"
	require.NoError(t, repo.Upsert(ctx, []model.VideoRecord{{VideoID: "abcdefghijk", VideoTitle: "Hooks", Topic: model.TopicTechnique, Thumbnail: &thumb}}))
	v, err = svc.GetByID(ctx, "abcdefghijk")
	require.NoError(t, err)
	assert.Equal(t, thumb, *v.Thumbnail)
}

func TestVideoService_ImportSkipsInvalidRecords(t *testing.T) {
	svc, repo := newTestVideoService(t, nil, nil)

	n, err := svc.Import(context.Background(), []model.VideoRecord{
		{VideoID: "bad", VideoTitle: "Too short"},
		{VideoID: "notitle0001", VideoTitle: "  "},
		{VideoID: "hookhook001", VideoTitle: "Lead Hook"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := repo.FindAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestVideoService_TextSearchUsesCacheAndFallsBackFromIndex(t *testing.T) {
	cache := &memoryCache{}
	index := &fakeIndex{searchErr: errors.New("es down")}
	svc, _ := newTestVideoService(t, cache, index)
	ctx := context.Background()

	videos, err := svc.Search(ctx, model.VideoSearchParams{Query: "jab", Limit: 3})
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "jabjabjab01", videos[0].VideoID)
	assert.Len(t, index.searched, 1)

	// 第二次命中缓存，不再访问索引
	_, err = svc.Search(ctx, model.VideoSearchParams{Query: "jab", Limit: 3})
	require.NoError(t, err)
	assert.Len(t, index.searched, 1)

	cache.getErr = errors.New("redis down")
	videos, err = svc.Search(ctx, model.VideoSearchParams{Query: "jab", Limit: 3})
	require.NoError(t, err)
	assert.Len(t, videos, 1)
}

func TestVideoService_LookupTermAndSync(t *testing.T) {
	index := &fakeIndex{searchErr: errors.New("es down")}
	svc, _ := newTestVideoService(t, nil, index)
	ctx := context.Background()

	rec, err := svc.LookupTerm(ctx, "slipping")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "slipslip001", rec.VideoID)
	assert.Equal(t, "slipping", rec.Reason)

	rec, err = svc.LookupTerm(ctx, "nutrition")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, svc.SyncIndex(ctx))
	assert.Len(t, index.synced, 2)
}

func TestVideoService_StructuredSearchDefaultLimit(t *testing.T) {
	svc, _ := newTestVideoService(t, nil, nil)

	videos, err := svc.Search(context.Background(), model.VideoSearchParams{Category: model.TopicMindset})
	require.NoError(t, err)

	// 分类无结果时回退到全部视频
	assert.Len(t, videos, 2)
}
