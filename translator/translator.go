package translator

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/linksrus/crawlindex/index"
	"github.com/linksrus/crawlindex/record"
	"github.com/microcosm-cc/bluemonday"
	"github.com/ncruces/go-strftime"
	"golang.org/x/xerrors"
)

// The strftime layout used for the updated_on field of link upserts.
const updatedOnLayout = "%Y-%m-%dT%H:%M:%S"

var repeatedSpaceRegex = regexp.MustCompile(`\s+`)

// Config encapsulates the settings for configuring a Translator.
type Config struct {
	// The base name of the index that actions target.
	IndexName string

	// An optional entry type label attached to each action.
	EntryType string

	// An optional strftime layout (e.g. "-%Y.%m.%d"). When set, the
	// current UTC date rendered with this layout is appended to IndexName.
	IndexDateFormat string

	// A clock instance for generating timestamps. If not specified, the
	// default wall-clock will be used instead.
	Clock clock.Clock

	// If set, markup is stripped from anchor text before it is indexed.
	// Links whose anchor text is reduced to nothing are skipped.
	SanitizeAnchors bool
}

func (cfg *Config) validate() error {
	var err error
	if cfg.IndexName == "" {
		err = multierror.Append(err, xerrors.Errorf("index name has not been provided"))
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	return err
}

// Translator converts crawler records into index actions.
type Translator struct {
	cfg        Config
	policyPool sync.Pool
}

// New returns a new Translator instance with the specified config.
func New(cfg Config) (*Translator, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("translator: config validation failed: %w", err)
	}

	return &Translator{
		cfg: cfg,
		policyPool: sync.Pool{
			New: func() interface{} {
				return bluemonday.StrictPolicy()
			},
		},
	}, nil
}

// IndexName returns the name of the index that actions created right now
// would target.
func (t *Translator) IndexName() string {
	if t.cfg.IndexDateFormat == "" {
		return t.cfg.IndexName
	}
	return t.cfg.IndexName + strftime.Format(t.cfg.IndexDateFormat, t.cfg.Clock.Now().UTC())
}

// Translate returns the index action for rec. The second return value is
// false if rec is of a kind that does not map to an index action; such
// records should be skipped.
func (t *Translator) Translate(rec record.Record) (*index.Action, bool) {
	switch r := rec.(type) {
	case *record.Document:
		return t.insertDocument(r), true
	case *record.Link:
		act := t.mergeAnchor(r)
		return act, act != nil
	case *record.AuthorityScore:
		return t.updateAuthority(r), true
	default:
		return nil, false
	}
}

func (t *Translator) insertDocument(doc *record.Document) *index.Action {
	return &index.Action{
		Op:     index.OpInsert,
		Index:  t.IndexName(),
		Type:   t.cfg.EntryType,
		ID:     doc.ID(),
		Source: doc.Source(),
	}
}

func (t *Translator) mergeAnchor(link *record.Link) *index.Action {
	anchor := link.Anchor
	if t.cfg.SanitizeAnchors {
		// Anchors made up entirely of markup carry no text worth indexing.
		if anchor = t.sanitize(anchor); anchor == "" && link.Anchor != "" {
			return nil
		}
	}

	return &index.Action{
		Op:    index.OpMergeUpdate,
		Index: t.IndexName(),
		Type:  t.cfg.EntryType,
		ID:    link.ID(),
		Script: &index.Script{
			Rule:   index.RuleMergeAnchors,
			Params: map[string]interface{}{"anchor": anchor},
		},
		Upsert: map[string]interface{}{
			"anchors":    []string{anchor},
			"url":        link.Target,
			"domain":     hostname(link.Target),
			"updated_on": strftime.Format(updatedOnLayout, t.cfg.Clock.Now().UTC()),
		},
	}
}

func (t *Translator) updateAuthority(score *record.AuthorityScore) *index.Action {
	return &index.Action{
		Op:    index.OpPartialUpdate,
		Index: t.IndexName(),
		Type:  t.cfg.EntryType,
		ID:    score.ID(),
		Doc:   map[string]interface{}{"authority": score.Score},
	}
}

func (t *Translator) sanitize(text string) string {
	policy := t.policyPool.Get().(*bluemonday.Policy)
	text = policy.Sanitize(text)
	t.policyPool.Put(policy)

	return strings.TrimSpace(html.UnescapeString(repeatedSpaceRegex.ReplaceAllString(text, " ")))
}

// hostname returns the host part of rawURL without any port. It returns an
// empty string if rawURL cannot be parsed.
func hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
