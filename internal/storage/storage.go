// Package storage isolates the dataset and artifact persistence surface.
// The local client reads the issuance table from a data directory and writes
// artifacts under an artifacts prefix; a Postgres-backed provider is used
// instead when a database URL is configured.
package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// IssueDateColumn is the column every dataset source must carry; the rolling
// window filter is defined over it.
const IssueDateColumn = "issue_date"

// ArtifactMetadata describes one stored artifact.
type ArtifactMetadata struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	ObjectKey   string `json:"object_key,omitempty"`
}

// Client is the local-directory storage implementation.
type Client struct {
	root   string
	prefix string
	log    zerolog.Logger
}

// NewClient creates a client rooted at dir. Artifacts are written under the
// given prefix inside the root.
func NewClient(dir, prefix string, log zerolog.Logger) *Client {
	if prefix == "" {
		prefix = "artifacts"
	}
	return &Client{root: dir, prefix: strings.Trim(prefix, "/"), log: log}
}

// ReadTable loads a CSV table by key (a path relative to the storage root).
// Values are decoded as numbers where possible; the issue_date column is
// parsed as a date. Returns the rows and the detected format label.
func (c *Client) ReadTable(key string) ([]map[string]any, string, error) {
	path := filepath.Join(c.root, key)
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open dataset %s: %w", key, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, "", fmt.Errorf("read dataset %s: %w", key, err)
	}
	if len(records) == 0 {
		return nil, "", fmt.Errorf("dataset %s is empty", key)
	}

	header := records[0]
	rows := make([]map[string]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i >= len(record) {
				continue
			}
			row[col] = decodeCell(col, record[i])
		}
		rows = append(rows, row)
	}

	c.log.Info().Str("key", key).Int("rows", len(rows)).Strs("columns", header).Msg("dataset read complete")
	return rows, "csv", nil
}

func decodeCell(column, raw string) any {
	if column == IssueDateColumn {
		if t, err := ParseIssueDate(raw); err == nil {
			return t
		}
		return raw
	}
	if i, err := strconv.Atoi(raw); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// ParseIssueDate parses the date formats the issuance feeds produce.
func ParseIssueDate(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "01/02/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Truncate(24 * time.Hour), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized issue_date %q", raw)
}

// UploadArtifact writes an artifact under the artifacts prefix and returns
// its metadata. Failures are logged and reported; the object key is empty
// when the write did not land.
func (c *Client) UploadArtifact(name, contentType string, data []byte) (ArtifactMetadata, error) {
	meta := ArtifactMetadata{Name: name, ContentType: contentType, Size: len(data)}

	dir := filepath.Join(c.root, c.prefix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.log.Error().Err(err).Str("name", name).Msg("artifact upload failed")
		return meta, fmt.Errorf("create artifact dir: %w", err)
	}
	objectKey := c.prefix + "/" + name
	if err := os.WriteFile(filepath.Join(c.root, objectKey), data, 0o644); err != nil {
		c.log.Error().Err(err).Str("key", objectKey).Msg("artifact upload failed")
		return meta, fmt.Errorf("write artifact: %w", err)
	}

	meta.ObjectKey = objectKey
	c.log.Info().Str("key", objectKey).Int("size", meta.Size).Str("content_type", contentType).Msg("artifact upload success")
	return meta, nil
}
