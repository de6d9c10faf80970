package worker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/storage"
)

func objectKey(job *domain.ExportJob) string {
	org := "shared"
	if !job.OrganizationID().IsZero() {
		org = job.OrganizationID().String()
	}
	return fmt.Sprintf("exports/%s/%s%s", org, job.ID(), job.Format().Extension())
}

// fileName turns a report title into a safe attachment name.
func fileName(title string, format domain.ExportFormat) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		case r == ' ' || r == '-' || r == '_':
			return '-'
		}
		return -1
	}, strings.TrimSpace(title))
	if slug == "" {
		slug = "report"
	}
	return slug + format.Extension()
}

func readObject(ctx context.Context, store storage.Store, key string) ([]byte, error) {
	file, err := store.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}
