// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"gorm.io/datatypes"

	"boxing-locker-go/internal/config"
	"boxing-locker-go/internal/model"
	"boxing-locker-go/pkg/log"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端并确保视频索引存在。
func InitES(esCfg config.ElasticsearchConfig) error {
	var addresses []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addresses = append(addresses, a)
		}
	}
	cfg := elasticsearch.Config{
		Addresses: addresses,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(client, esCfg.IndexName)
}

// 标题与子话题额外保存一份小写 keyword，供 wildcard 做子串匹配，
// 与数据库 LIKE 检索的结果保持一致。
const videoMapping = `{
	"mappings": {
		"properties": {
			"video_id": { "type": "keyword" },
			"video_title": { "type": "text" },
			"title_lower": { "type": "keyword" },
			"topic": { "type": "keyword" },
			"subtopic": { "type": "keyword" },
			"subtopic_lower": { "type": "keyword" },
			"tags": { "type": "keyword" },
			"url": { "type": "keyword", "index": false },
			"thumbnail": { "type": "keyword", "index": false },
			"view_count": { "type": "long" },
			"published_time": { "type": "keyword" }
		}
	}
}`

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(client *elasticsearch.Client, indexName string) error {
	res, err := client.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	createRes, err := client.Indices.Create(
		indexName,
		client.Indices.Create.WithBody(strings.NewReader(videoMapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, createRes.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// videoDocument 是视频在索引中的文档结构。
type videoDocument struct {
	VideoID       string   `json:"video_id"`
	VideoTitle    string   `json:"video_title"`
	TitleLower    string   `json:"title_lower"`
	Topic         string   `json:"topic"`
	Subtopic      *string  `json:"subtopic"`
	SubtopicLower string   `json:"subtopic_lower,omitempty"`
	Tags          []string `json:"tags"`
	URL           *string  `json:"url"`
	Thumbnail     *string  `json:"thumbnail"`
	ViewCount     int64    `json:"view_count"`
	PublishedTime string   `json:"published_time"`
}

func toDocument(v model.VideoRecord) videoDocument {
	doc := videoDocument{
		VideoID:       v.VideoID,
		VideoTitle:    v.VideoTitle,
		TitleLower:    strings.ToLower(v.VideoTitle),
		Topic:         v.Topic,
		Subtopic:      v.Subtopic,
		Tags:          []string(v.Tags),
		URL:           v.URL,
		Thumbnail:     v.Thumbnail,
		ViewCount:     v.ViewCount,
		PublishedTime: v.PublishedTime,
	}
	if v.Subtopic != nil {
		doc.SubtopicLower = strings.ToLower(*v.Subtopic)
	}
	return doc
}

func (d videoDocument) record() model.VideoRecord {
	return model.VideoRecord{
		VideoID:       d.VideoID,
		VideoTitle:    d.VideoTitle,
		Topic:         d.Topic,
		Subtopic:      d.Subtopic,
		Tags:          datatypes.JSONSlice[string](d.Tags),
		URL:           d.URL,
		Thumbnail:     d.Thumbnail,
		ViewCount:     d.ViewCount,
		PublishedTime: d.PublishedTime,
	}
}

// VideoIndex 是基于 Elasticsearch 的视频自由文本检索。
type VideoIndex struct {
	client    *elasticsearch.Client
	indexName string
}

// NewVideoIndex 创建一个新的 VideoIndex。
func NewVideoIndex(client *elasticsearch.Client, indexName string) *VideoIndex {
	return &VideoIndex{client: client, indexName: indexName}
}

// 与数据库检索一致：标题匹配前三个词，子话题匹配前两个词。
const subtopicWords = 2

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

// buildSearchQuery 构建检索请求体，任一词命中即可，按播放量降序。
func buildSearchQuery(words []string, limit int) map[string]interface{} {
	should := make([]map[string]interface{}, 0, len(words)*2)
	for i, w := range words {
		pattern := "*" + wildcardEscaper.Replace(strings.ToLower(w)) + "*"
		should = append(should, map[string]interface{}{
			"wildcard": map[string]interface{}{"title_lower": map[string]interface{}{"value": pattern}},
		})
		if i < subtopicWords {
			should = append(should, map[string]interface{}{
				"wildcard": map[string]interface{}{"subtopic_lower": map[string]interface{}{"value": pattern}},
			})
		}
	}
	return map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should":               should,
				"minimum_should_match": 1,
			},
		},
		"sort": []map[string]interface{}{
			{"view_count": map[string]interface{}{"order": "desc"}},
			{"video_id": map[string]interface{}{"order": "desc"}},
		},
	}
}

// Search 按检索词查询视频，不带检索词时返回播放量最高的视频。
func (idx *VideoIndex) Search(ctx context.Context, words []string, limit int) ([]model.VideoRecord, error) {
	var query map[string]interface{}
	if len(words) == 0 {
		query = map[string]interface{}{
			"size":  limit,
			"query": map[string]interface{}{"match_all": map[string]interface{}{}},
			"sort":  []map[string]interface{}{{"view_count": map[string]interface{}{"order": "desc"}}},
		}
	} else {
		query = buildSearchQuery(words, limit)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	res, err := idx.client.Search(
		idx.client.Search.WithContext(ctx),
		idx.client.Search.WithIndex(idx.indexName),
		idx.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search video index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("video index search returned error: %s", res.String())
	}

	var body struct {
		Hits struct {
			Hits []struct {
				Source videoDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	videos := make([]model.VideoRecord, 0, len(body.Hits.Hits))
	for _, hit := range body.Hits.Hits {
		videos = append(videos, hit.Source.record())
	}
	return videos, nil
}

// Sync 以 video_id 作为文档 ID 写入全部视频，重复同步是幂等的。
func (idx *VideoIndex) Sync(ctx context.Context, videos []model.VideoRecord) error {
	for _, v := range videos {
		docBytes, err := json.Marshal(toDocument(v))
		if err != nil {
			return err
		}
		req := esapi.IndexRequest{
			Index:      idx.indexName,
			DocumentID: v.VideoID,
			Body:       bytes.NewReader(docBytes),
		}
		res, err := req.Do(ctx, idx.client)
		if err != nil {
			return err
		}
		if res.IsError() {
			log.Errorf("索引视频到 Elasticsearch 出错: %s", res.String())
			res.Body.Close()
			return fmt.Errorf("failed to index video %s", v.VideoID)
		}
		res.Body.Close()
	}

	res, err := idx.client.Indices.Refresh(
		idx.client.Indices.Refresh.WithContext(ctx),
		idx.client.Indices.Refresh.WithIndex(idx.indexName),
	)
	if err != nil {
		return fmt.Errorf("failed to refresh video index: %w", err)
	}
	defer res.Body.Close()
	return nil
}
