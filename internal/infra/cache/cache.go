package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/leakloom/internal/infra/fsx"
)

// Store 提供 <root>/documents/ 下的抓取文档缓存（sitemap / HTML 原文）。
//
// 约束：
// - Root 为空表示禁用缓存：读总是未命中，写是 no-op
// - ReadOnly=true 时只读（--cache-readonly，用于离线复跑）
// - 缓存只保存输入文档，从不保存分析结果（不做跨次运行去重）
type Store struct {
	Root     string
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	root = strings.TrimSpace(root)
	if root != "" {
		root = filepath.Clean(root)
	}
	return Store{Root: root, ReadOnly: readOnly}
}

func (s Store) Enabled() bool { return s.Root != "" }

// DocumentPath 返回 rawURL 对应缓存文件的绝对路径：documents/<host>/<sha1(url)>.body。
func (s Store) DocumentPath(rawURL string) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("cache 未启用")
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("url 缺少 host：%q", rawURL)
	}
	sum := sha1.Sum([]byte(u.String()))
	return filepath.Join(s.Root, "documents", cleanHost(u.Host), hex.EncodeToString(sum[:])+".body"), nil
}

// ReadDocument 读取缓存；未启用或未命中时 ok=false 且 err=nil。
func (s Store) ReadDocument(rawURL string) ([]byte, bool, error) {
	if !s.Enabled() {
		return nil, false, nil
	}
	path, err := s.DocumentPath(rawURL)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s Store) WriteDocument(rawURL string, body []byte) error {
	if !s.Enabled() {
		return nil
	}
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.DocumentPath(rawURL)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), body)
}

var unsafeHostRE = regexp.MustCompile(`[^a-z0-9._-]`)

// cleanHost 把 host（可能含端口）变成安全的目录名，避免路径穿越。
func cleanHost(h string) string {
	h = unsafeHostRE.ReplaceAllString(strings.ToLower(h), "_")
	h = strings.Trim(h, ".")
	if h == "" {
		return "_"
	}
	return h
}
