package session

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	maxSearchTerms  = 5
	timestampLayout = "20060102_150405"
)

var stopWords = map[string]bool{
	"www": true, "http": true, "https": true, "com": true, "free": true,
	"download": true, "image": true, "vector": true, "photo": true,
}

var (
	hyphenWordRe   = regexp.MustCompile(`[a-zA-Z]+(?:-[a-zA-Z]+)*`)
	longWordRe     = regexp.MustCompile(`[a-zA-Z]{4,}`)
	uniqueSuffixRe = regexp.MustCompile(`_\d+_\d{8}_\d{6}$`)
)

// UserDir is where files for one user are kept.
func UserDir(downloadDir string, userID int64) string {
	return filepath.Join(downloadDir, fmt.Sprintf("user_%d", userID))
}

// UniqueName appends the user id and a second-resolution timestamp to the
// site's file name so two downloads never collide.
func UniqueName(suggested string, userID int64, now time.Time) string {
	name := filepath.Base(strings.ReplaceAll(suggested, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "resource"
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		base = "resource"
	}
	return fmt.Sprintf("%s_%d_%s%s", base, userID, now.Format(timestampLayout), ext)
}

// OriginalStem strips the extension and any UniqueName suffix.
func OriginalStem(name string) string {
	name = filepath.Base(name)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return uniqueSuffixRe.ReplaceAllString(stem, "")
}

// SearchTerms pulls up to five keywords out of a resource URL, used when the
// direct link is not accessible.
func SearchTerms(rawURL string) []string {
	var candidates []string

	u, err := url.Parse(rawURL)
	p := rawURL
	if err == nil {
		p = u.Path
	}

	switch {
	case strings.Contains(rawURL, "query="):
		q := ""
		if err == nil {
			q = u.Query().Get("query")
		}
		if q == "" {
			q = rawURL[strings.Index(rawURL, "query=")+len("query="):]
			if i := strings.IndexByte(q, '&'); i >= 0 {
				q = q[:i]
			}
		}
		candidates = strings.FieldsFunc(q, func(r rune) bool { return r == '+' || r == ' ' })
	case strings.Contains(p, "_"):
		seg := path.Base(strings.TrimSuffix(p, "/"))
		if i := strings.IndexByte(seg, '_'); i >= 0 {
			seg = seg[:i]
		}
		for _, w := range hyphenWordRe.FindAllString(seg, -1) {
			for _, part := range strings.Split(w, "-") {
				if len(part) > 3 {
					candidates = append(candidates, part)
				}
			}
		}
	default:
		candidates = longWordRe.FindAllString(p, -1)
	}

	seen := make(map[string]bool)
	terms := make([]string, 0, maxSearchTerms)
	for _, c := range candidates {
		w := strings.ToLower(strings.TrimSpace(c))
		if w == "" || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
		if len(terms) == maxSearchTerms {
			break
		}
	}
	return terms
}

// significantTokens splits a file stem into the words worth matching
// against the download history.
func significantTokens(stem string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(strings.ToLower(stem), func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == '.'
	}) {
		if len(part) > 3 {
			out = append(out, part)
		}
	}
	return out
}

// exactRow returns the first row whose content contains stem, or -1.
func exactRow(rows []string, stem string) int {
	stem = strings.ToLower(stem)
	if stem == "" {
		return -1
	}
	for i, r := range rows {
		if strings.Contains(strings.ToLower(r), stem) {
			return i
		}
	}
	return -1
}

// fuzzyRow returns the row sharing the most significant tokens with stem,
// or -1 when no row shares any.
func fuzzyRow(rows []string, stem string) int {
	tokens := significantTokens(stem)
	best, bestHits := -1, 0
	for i, r := range rows {
		lower := strings.ToLower(r)
		hits := 0
		for _, t := range tokens {
			if strings.Contains(lower, t) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = i, hits
		}
	}
	return best
}

// moveFile renames src into dir/name, copying when a rename across devices
// is not possible.
func moveFile(src, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, name)
	if err := os.Rename(src, dst); err == nil {
		return dst, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	_ = os.Remove(src)
	return dst, nil
}
