package service

import (
	"errors"
	"fmt"
	"os"
)

// MaxFAQChars 是 FAQ 接口返回的最大字符数。
const MaxFAQChars = 8000

// ErrFAQUnavailable 表示 FAQ 文件无法读取。
var ErrFAQUnavailable = errors.New("faq unavailable")

// FAQService 提供语音教练使用的背景资料。
type FAQService interface {
	Load() (string, error)
}

type faqService struct {
	path string
}

// NewFAQService 创建一个新的 FAQService 实例。
func NewFAQService(path string) FAQService {
	return &faqService{path: path}
}

// Load 读取 FAQ 文件并截取前 MaxFAQChars 个字符。
func (s *faqService) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFAQUnavailable, err)
	}
	return truncateRunes(string(data), MaxFAQChars), nil
}
