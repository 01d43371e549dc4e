// Package reports archives grading batch results so a committed run can be
// audited after enrollments change again.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-mastery/internal/grading"
)

type Archive interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error) // returns canonical key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	URL(key string) (string, error)
}

// FSArchive stores reports below a base directory.
type FSArchive struct{ base string }

func NewFSArchive(base string) (*FSArchive, error) {
	if base == "" {
		base = "./reports"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &FSArchive{base: base}, nil
}

func (a *FSArchive) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if key == "" || clean == "/" {
		return "", errors.New("empty key")
	}
	return filepath.Join(a.base, clean), nil
}

func (a *FSArchive) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst, err := a.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return key, nil
}

func (a *FSArchive) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := a.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (a *FSArchive) URL(key string) (string, error) {
	p, err := a.path(key)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: abs}
	return u.String(), nil
}

// GradingReport is what gets archived for one Process run.
type GradingReport struct {
	GradedAt time.Time             `json:"graded_at"`
	Actor    string                `json:"actor"`
	Result   grading.ProcessResult `json:"result"`
}

// ReportKey is grading/<section>/<utc timestamp>.json.
func ReportKey(sectionID string, at time.Time) string {
	sec := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(sectionID)
	return fmt.Sprintf("grading/%s/%s.json", sec, at.UTC().Format("20060102T150405.000Z"))
}

func SaveGradingReport(ctx context.Context, a Archive, actor grading.Actor, res grading.ProcessResult, at time.Time) (string, error) {
	b, err := json.MarshalIndent(GradingReport{GradedAt: at.UTC(), Actor: actor.ID, Result: res}, "", "  ")
	if err != nil {
		return "", err
	}
	return a.Put(ctx, ReportKey(res.Summary.SectionID, at), strings.NewReader(string(b)))
}
