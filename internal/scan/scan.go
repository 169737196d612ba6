package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// HTMLFile 是一次扫描得到的本地 HTML 文件（只做 stat，不读内容）。
type HTMLFile struct {
	AbsPath string
	RelPath string
}

// ScanHTML 扫描 root 下的 *.htm* 文件（.htm / .html / .htmls 等），并应用目录排除规则。
//
// 规则：
// - 永久排除：<root>/.git/ 与 <root>/node_modules/
// - excludeDirs：均视为相对 root 的路径（若是绝对路径，则按绝对路径处理）
// - 输出按相对路径排序（稳定）
func ScanHTML(root string, excludeDirs []string) ([]HTMLFile, error) {
	root, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return nil, err
	}
	excluded := buildExcluded(root, excludeDirs)

	files := make([]HTMLFile, 0, 32)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		// 统一的排除判断：目录用 SkipDir，文件则直接跳过。
		if isExcluded(path, excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isHTMLName(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, HTMLFile{AbsPath: path, RelPath: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func isHTMLName(name string) bool {
	return strings.HasPrefix(strings.ToLower(filepath.Ext(name)), ".htm")
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, 2+len(excludeDirs))
	excluded = append(excluded, filepath.Join(root, ".git"), filepath.Join(root, "node_modules"))

	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}

	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
