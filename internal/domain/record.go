package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RawRecord is one bibliographic entry as handed over by an external parser.
// It is a tagged variant: an entry type plus a flat field map. The engine
// never interprets the source file format; type-specific field selection
// (journal vs. booktitle) happens here and nowhere deeper.
type RawRecord struct {
	// Source identifies the search export this record came from.
	Source string `json:"source"`

	// EntryType is the raw bibliographic entry type tag.
	EntryType string `json:"entry_type"`

	// Key is the citation key from the export, if any.
	Key string `json:"key,omitempty"`

	// Fields holds the raw bibliographic fields keyed by lower-case name.
	Fields map[string]string `json:"fields"`
}

// Field returns the named field with surrounding whitespace trimmed.
func (r RawRecord) Field(name string) string {
	return strings.TrimSpace(r.Fields[name])
}

// Title returns the raw title field.
func (r RawRecord) Title() string { return r.Field("title") }

// DOI returns the raw doi field.
func (r RawRecord) DOI() string { return r.Field("doi") }

// Year returns the raw year field.
func (r RawRecord) Year() string { return r.Field("year") }

// Abstract returns the raw abstract field.
func (r RawRecord) Abstract() string { return r.Field("abstract") }

// Authors returns the raw author field.
func (r RawRecord) Authors() string { return r.Field("author") }

// Keywords returns the raw keywords field.
func (r RawRecord) Keywords() string { return r.Field("keywords") }

// Venue returns the publication venue: journal for articles, booktitle for
// proceedings and book chapters.
func (r RawRecord) Venue() string {
	switch NormalizeEntryType(r.EntryType) {
	case EntryTypeArticle:
		return r.Field("journal")
	case EntryTypeInProceedings, EntryTypeInBook:
		return r.Field("booktitle")
	default:
		if v := r.Field("journal"); v != "" {
			return v
		}
		return r.Field("booktitle")
	}
}

// SourceRecord is one ingested bibliographic entry, immutable once created.
// It is owned by the search export it came from and referenced by exactly one
// Review Unit.
type SourceRecord struct {
	ID         uuid.UUID         `json:"id"`
	UnitID     uuid.UUID         `json:"unit_id"`
	Source     string            `json:"source"`
	EntryType  EntryType         `json:"entry_type"`
	Key        string            `json:"key,omitempty"`
	Title      string            `json:"title"`
	Authors    string            `json:"authors,omitempty"`
	Venue      string            `json:"venue,omitempty"`
	Year       string            `json:"year,omitempty"`
	DOI        string            `json:"doi,omitempty"`
	Abstract   string            `json:"abstract,omitempty"`
	Keywords   string            `json:"keywords,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	ImportedAt time.Time         `json:"imported_at"`
}

// NewSourceRecord builds an immutable SourceRecord from a raw parser record.
func NewSourceRecord(raw RawRecord, now time.Time) SourceRecord {
	return SourceRecord{
		ID:         uuid.New(),
		Source:     raw.Source,
		EntryType:  NormalizeEntryType(raw.EntryType),
		Key:        raw.Key,
		Title:      raw.Title(),
		Authors:    raw.Authors(),
		Venue:      raw.Venue(),
		Year:       raw.Year(),
		DOI:        raw.DOI(),
		Abstract:   raw.Abstract(),
		Keywords:   raw.Keywords(),
		Fields:     raw.Fields,
		ImportedAt: now.UTC(),
	}
}
