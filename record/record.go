package record

import (
	"crypto/sha1"
	"encoding/hex"
)

// Kind identifies the type of a record emitted by the crawler.
type Kind uint8

const (
	// KindUnknown is reported by records that the indexer does not know
	// how to handle.
	KindUnknown Kind = iota

	// KindDocument is reported by fetched web-pages.
	KindDocument

	// KindLink is reported by hyperlinks observed while crawling.
	KindLink

	// KindAuthorityScore is reported by computed authority (rank) scores.
	KindAuthorityScore
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindLink:
		return "link"
	case KindAuthorityScore:
		return "authority"
	default:
		return "unknown"
	}
}

// Record is implemented by all values that can be fed to the indexer.
type Record interface {
	Kind() Kind
}

// Document describes a web-page retrieved by the crawler.
type Document struct {
	// The URL were the document was obtained from. It uniquely identifies
	// the document.
	URL string

	// Any other content fields extracted from the page (title, content,
	// language etc.).
	Fields map[string]interface{}
}

// Kind implements Record.
func (*Document) Kind() Kind { return KindDocument }

// ID returns the index entry ID for this document.
func (d *Document) ID() string { return HashID(d.URL) }

// Source returns the document as a flat field map. The url field always
// reflects d.URL.
func (d *Document) Source() map[string]interface{} {
	src := make(map[string]interface{}, len(d.Fields)+1)
	for k, v := range d.Fields {
		src[k] = v
	}
	src["url"] = d.URL
	return src
}

// Link describes a hyperlink pointing to Target.
type Link struct {
	// The URL that the link points to.
	Target string

	// The text of the link.
	Anchor string
}

// Kind implements Record.
func (*Link) Kind() Kind { return KindLink }

// ID returns the index entry ID for the link target.
func (l *Link) ID() string { return HashID(l.Target) }

// AuthorityScore describes the rank computed for a URL.
type AuthorityScore struct {
	URL   string
	Score float64
}

// Kind implements Record.
func (*AuthorityScore) Kind() Kind { return KindAuthorityScore }

// ID returns the index entry ID for the scored URL.
//
// Authority entries are addressed by the raw URL, not by its hash. Existing
// indices depend on this so it must not be unified with the other kinds.
func (a *AuthorityScore) ID() string { return a.URL }

// Unknown wraps a record type that the indexer does not recognize.
type Unknown struct {
	Type string
}

// Kind implements Record.
func (*Unknown) Kind() Kind { return KindUnknown }

// HashID returns the hex-encoded SHA-1 digest of s. It is used to derive
// stable index entry IDs from URLs.
func HashID(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
