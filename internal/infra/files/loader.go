// Package files loads question partitions from a directory of <subject>.yaml|.yml|.json files.
package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"trivia-room-service/internal/domain"
)

var extensions = []string{".yaml", ".yml", ".json"}

// Loader reads subject files from dir.
type Loader struct {
	dir string
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// questionFile is the on-disk layout. A bare list of questions is accepted as well.
type questionFile struct {
	Subject   string            `yaml:"subject"`
	Questions []domain.Question `yaml:"questions"`
}

func (l *Loader) LoadSubject(_ context.Context, subject string) ([]domain.Question, error) {
	for _, ext := range extensions {
		path := filepath.Join(l.dir, subject+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return decode(subject, path, data)
	}
	return nil, fmt.Errorf("%w: no file for %s in %s", domain.ErrNoQuestions, subject, l.dir)
}

// Subjects lists the subject names present in the directory.
func (l *Loader) Subjects() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", l.dir, err)
	}
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !isSupported(ext) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func isSupported(ext string) bool {
	for _, e := range extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// decode parses YAML (and therefore JSON) question documents.
func decode(subject, path string, data []byte) ([]domain.Question, error) {
	var doc questionFile
	if err := yaml.Unmarshal(data, &doc); err != nil || len(doc.Questions) == 0 {
		var list []domain.Question
		if listErr := yaml.Unmarshal(data, &list); listErr != nil {
			if err == nil {
				err = listErr
			}
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		doc.Questions = list
	}
	if len(doc.Questions) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrNoQuestions, path)
	}

	for i := range doc.Questions {
		q := &doc.Questions[i]
		if q.ID == "" {
			q.ID = subject + "-" + strconv.Itoa(i+1)
		}
		if q.Category == "" {
			q.Category = subject
		}
	}
	return doc.Questions, nil
}
