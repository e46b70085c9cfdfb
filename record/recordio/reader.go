package recordio

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/linksrus/crawlindex/record"
	"golang.org/x/xerrors"
)

// The maximum size of a single encoded record.
const maxLineSize = 4 << 20

type wireRecord struct {
	Kind string `json:"kind"`

	// Document and authority fields.
	URL    string                 `json:"url"`
	Fields map[string]interface{} `json:"fields"`
	Score  float64                `json:"score"`

	// Link fields.
	Target string `json:"target"`
	Anchor string `json:"anchor"`
}

// Reader decodes a stream of JSON-encoded records, one per line.
type Reader struct {
	scanner *bufio.Scanner
	lineNum int

	latched record.Record
	lastErr error
}

// NewReader returns a Reader that decodes records from r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &Reader{scanner: scanner}
}

// Next decodes the next record from the stream. It returns false if no more
// records are available or an error occurs.
func (r *Reader) Next() bool {
	if r.lastErr != nil {
		return false
	}

	for r.scanner.Scan() {
		r.lineNum++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		wr, err := decodeLine(line)
		if err != nil {
			r.lastErr = xerrors.Errorf("line %d: %w", r.lineNum, err)
			return false
		}

		r.latched = wr.toRecord()
		return true
	}

	if err := r.scanner.Err(); err != nil {
		r.lastErr = xerrors.Errorf("line %d: %w", r.lineNum+1, err)
	}
	return false
}

// Record returns the last record decoded by a call to Next.
func (r *Reader) Record() record.Record {
	return r.latched
}

// Error returns the last error encountered by the reader.
func (r *Reader) Error() error {
	return r.lastErr
}

// decodeLine decodes a single record. Numbers inside document fields are kept
// as json.Number values so that large integers survive re-encoding.
func decodeLine(line []byte) (*wireRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var wr wireRecord
	if err := dec.Decode(&wr); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, xerrors.New("unexpected data after record")
	}
	return &wr, nil
}

func (wr *wireRecord) toRecord() record.Record {
	switch wr.Kind {
	case "document":
		return &record.Document{URL: wr.URL, Fields: wr.Fields}
	case "link":
		return &record.Link{Target: wr.Target, Anchor: wr.Anchor}
	case "authority":
		return &record.AuthorityScore{URL: wr.URL, Score: wr.Score}
	default:
		return &record.Unknown{Type: wr.Kind}
	}
}
