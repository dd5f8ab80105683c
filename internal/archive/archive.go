// Package archive persists raw ESPI XML documents to disk so a fetch is
// never lost to a downstream parsing or storage failure.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

type Archive struct {
	dir    string
	logger *logrus.Logger
	now    func() time.Time
}

// New creates the archive directory if needed.
func New(dir string, logger *logrus.Logger) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &Archive{dir: dir, logger: logger, now: time.Now}, nil
}

// Save writes one document under the archive directory and returns the
// written path. An empty label names the file by the current timestamp.
func (a *Archive) Save(xmlData []byte, label string) (string, error) {
	if label == "" {
		label = a.now().UTC().Format("2006-01-02_150405")
	}
	path := filepath.Join(a.dir, label+".xml")

	if err := os.WriteFile(path, xmlData, 0o644); err != nil {
		return "", fmt.Errorf("writing archive file: %w", err)
	}

	a.logger.WithFields(logrus.Fields{
		"path":  path,
		"bytes": len(xmlData),
	}).Debug("archived raw document")
	return path, nil
}
