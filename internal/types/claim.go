// Package types provides shared type definitions used across claimchain packages.
// This package exists to break import cycles between the chain, pipeline, and
// agent packages. Types in this package are foundational data structures with
// no complex dependencies; all of them serialize to JSON so results can be
// handed to an external persistence layer.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID identifies claims, requirements, work items, and tasks.
type ID = uuid.UUID

// NewID returns a fresh random identifier.
func NewID() ID { return uuid.New() }

// ParseID parses the canonical string form of an ID.
func ParseID(s string) (ID, error) { return uuid.Parse(s) }

// Confidence is a score in [0,1]. Use NewConfidence to construct validated
// values; the zero value is a valid "no confidence".
type Confidence float64

// NewConfidence validates the range.
func NewConfidence(v float64) (Confidence, error) {
	if v < 0.0 || v > 1.0 {
		return 0, fmt.Errorf("confidence must be between 0.0 and 1.0, got %v", v)
	}
	return Confidence(v), nil
}

// Value returns the score as a float64.
func (c Confidence) Value() float64 { return float64(c) }

// LocationKind discriminates where an artifact lives.
type LocationKind string

const (
	LocationFile   LocationKind = "file"
	LocationURL    LocationKind = "url"
	LocationCommit LocationKind = "commit"
	LocationTicket LocationKind = "ticket"
)

// Location points at where an artifact exists.
type Location struct {
	Kind      LocationKind `json:"kind"`
	Path      string       `json:"path,omitempty"`
	StartLine int          `json:"start_line,omitempty"`
	EndLine   int          `json:"end_line,omitempty"`
	URL       string       `json:"url,omitempty"`
	Commit    string       `json:"commit,omitempty"`
	System    string       `json:"system,omitempty"`
	TicketID  string       `json:"ticket_id,omitempty"`
}

// FileLocation builds a file location. Zero lines mean "whole file".
func FileLocation(path string, startLine, endLine int) Location {
	return Location{Kind: LocationFile, Path: path, StartLine: startLine, EndLine: endLine}
}

// String renders the location for logs and work item descriptions.
func (l Location) String() string {
	switch l.Kind {
	case LocationFile:
		if l.StartLine > 0 {
			return fmt.Sprintf("%s:%d-%d", l.Path, l.StartLine, l.EndLine)
		}
		return l.Path
	case LocationURL:
		return l.URL
	case LocationCommit:
		hash := l.Commit
		if len(hash) > 8 {
			hash = hash[:8]
		}
		if l.Path != "" {
			return hash + ":" + l.Path
		}
		return hash
	case LocationTicket:
		return l.System + ":" + l.TicketID
	default:
		return l.Path
	}
}

// ClaimType categorizes what kind of behavior a claim asserts.
type ClaimType string

const (
	ClaimFunctional  ClaimType = "functional"
	ClaimBehavioral  ClaimType = "behavioral"
	ClaimPerformance ClaimType = "performance"
	ClaimSecurity    ClaimType = "security"
	ClaimTesting     ClaimType = "testing"
	ClaimRequirement ClaimType = "requirement"
)

// Claim is a natural-language assertion about required system behavior,
// produced by an external extractor. Claims are immutable once created.
type Claim struct {
	ID                   ID         `json:"id"`
	ArtifactID           ID         `json:"artifact_id"`
	Statement            string     `json:"statement"`
	Type                 ClaimType  `json:"claim_type"`
	SourceExcerpt        string     `json:"source_excerpt"`
	ExtractionConfidence Confidence `json:"extraction_confidence"`
	ExtractedAt          time.Time  `json:"extracted_at"`
}

// Requirement is one concrete, testable obligation derived from a claim.
type Requirement struct {
	ID                 ID        `json:"id"`
	ClaimID            ID        `json:"claim_id"`
	Description        string    `json:"description"`
	AcceptanceCriteria []string  `json:"acceptance_criteria"`
	Priority           int       `json:"priority"` // 1-10
	ExtractedAt        time.Time `json:"extracted_at"`
}
