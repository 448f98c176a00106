package utils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// imageExts are the file extensions the CLI picks up from a directory
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// EnsureDir creates dir and any missing parents
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// IsImageFile reports whether name has an extension the pipeline accepts
func IsImageFile(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// GenerateOutputFilename builds dir/<name><suffix>.<format> for a result
// image. Characters that are unsafe in file names become underscores.
func GenerateOutputFilename(input, outputDir, suffix, format string) string {
	base := filepath.Base(input)
	name := SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" {
		name = "image"
	}
	if format == "" {
		format = "jpg"
	}
	return filepath.Join(outputDir, name+suffix+"."+format)
}

// ListImageFiles walks dir and returns image files in lexical order.
// Hidden directories are skipped.
func ListImageFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsImageFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// FileExists reports whether path exists and is not a directory
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// DirExists reports whether path is an existing directory
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// SanitizeFilename replaces path separators and shell-hostile characters
func SanitizeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, name)
	return strings.Trim(cleaned, " .")
}

// HumanSize renders a byte count with binary units, dropping the fraction
// when the value is whole: 10485760 is "10MB", 1536 is "1.5KB".
func HumanSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%dB", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit && exp < 5; n /= unit {
		div *= unit
		exp++
	}

	suffix := string("KMGTPE"[exp]) + "B"
	if size%div == 0 {
		return fmt.Sprintf("%d%s", size/div, suffix)
	}
	return fmt.Sprintf("%.1f%s", float64(size)/float64(div), suffix)
}
