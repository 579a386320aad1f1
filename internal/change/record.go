// Package change detects added, modified and deleted files by content hash.
package change

import (
	"fmt"
	"time"

	"github.com/zeebo/xxh3"
)

// ChangeType classifies a detected change.
type ChangeType int

const (
	ChangeAdded ChangeType = iota
	ChangeModified
	ChangeDeleted
)

func (c ChangeType) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(c))
	}
}

// MarshalText renders the type by name in JSON reports.
func (c ChangeType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// FileChangeRecord describes one file whose content differs from the last
// known state. Added records have no OldHash; Deleted records have no NewHash.
type FileChangeRecord struct {
	Path             string     `json:"path"`
	OldHash          string     `json:"oldHash,omitempty"`
	NewHash          string     `json:"newHash,omitempty"`
	Type             ChangeType `json:"type"`
	Size             int64      `json:"size"`
	Timestamp        time.Time  `json:"timestamp"`
	AnalysisRequired bool       `json:"analysisRequired"`
}

// HashContent returns the hex xxh3 digest of content. It detects content
// changes and is not meant to resist tampering.
func HashContent(content []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(content))
}
