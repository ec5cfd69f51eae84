package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"
)

// Entry is one file inside an export archive.
type Entry struct {
	Name string
	Data []byte
}

// ArticleEntry renders one article as a markdown file for the archive.
func ArticleEntry(index int, title, content string) Entry {
	body := fmt.Sprintf("# %s\n\n%s\n", title, content)
	return Entry{
		Name: fmt.Sprintf("article-%02d.md", index),
		Data: []byte(body),
	}
}

// ImageExt guesses a file extension from an image URL, defaulting to .jpg.
func ImageExt(imageURL string) string {
	ext := strings.ToLower(path.Ext(imageURL))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp":
		return ext
	}
	return ".jpg"
}

// Archive bundles the entries into a zip archive.
func Archive(entries []Entry) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, entry := range entries {
		w, err := zw.Create(entry.Name)
		if err != nil {
			continue
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil
		}
	}
	_ = zw.Close()
	return buf.Bytes()
}
