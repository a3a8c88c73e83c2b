package wikidump

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/filter"
	"github.com/teranos/edithist/ixgest/types"
	"github.com/teranos/edithist/jsondiff"
	"github.com/teranos/edithist/logger"
)

// Element names of the MediaWiki export format that carry meaning here
const (
	elemPage        = "page"
	elemRevision    = "revision"
	elemContributor = "contributor"
	elemTitle       = "title"
	elemID          = "id"
	elemParentID    = "parentid"
	elemTimestamp   = "timestamp"
	elemUsername    = "username"
	elemComment     = "comment"
	elemFormat      = "format"
	elemText        = "text"
)

// TokenReader is a forward-only markup token stream. *xml.Decoder satisfies it.
type TokenReader interface {
	Token() (xml.Token, error)
	InputOffset() int64
}

// Context is the parser's position in the page/revision/contributor nesting.
// The same element name ("id") means different things in each context.
type Context int

const (
	OutsideItem Context = iota
	InItem
	InRevision
	InContributor
)

func (c Context) String() string {
	switch c {
	case OutsideItem:
		return "outside_item"
	case InItem:
		return "in_item"
	case InRevision:
		return "in_revision"
	case InContributor:
		return "in_contributor"
	default:
		return "unknown"
	}
}

// ParserOptions controls revision validation and diffing.
type ParserOptions struct {
	File                 string      // name used in errors and logs
	Filter               *filter.Set // nil accepts every item
	PayloadFormat        string      // declared <format> required for diffing
	KeepInvalidRevisions bool        // keep metadata of revisions that were not diffed
	VerifyPatches        bool        // re-apply each diff and check the result
}

// Stats counts what the parser saw and decided.
type Stats struct {
	ItemsSeen            int `json:"items_seen"`
	ItemsEmitted         int `json:"items_emitted"`
	ItemsFiltered        int `json:"items_filtered"`
	ItemsWithoutPayload  int `json:"items_without_payload"`
	Revisions            int `json:"revisions"`
	RevisionsDiffed      int `json:"revisions_diffed"`
	RevisionsWrongFormat int `json:"revisions_wrong_format"`
	RevisionsDeleted     int `json:"revisions_deleted"`
	PayloadErrors        int `json:"payload_errors"`
	VerifyFailures       int `json:"verify_failures"`
	Operations           int `json:"operations"`
}

// Parser reconstructs items and their diffed revisions from a dump token
// stream. It holds one item's state at a time.
type Parser struct {
	tokens TokenReader
	opts   ParserOptions
	logger *zap.SugaredLogger
	stats  Stats
	err    error

	// element nesting
	stack    []string
	state    Context
	ctxDepth [InContributor + 1]int // stack depth of each open context element

	// leaf element whose text is being collected
	field      string
	fieldDepth int
	text       strings.Builder

	// current item
	item          *types.Item
	memberDecided bool
	member        bool
	prev          jsondiff.Document

	// current revision
	rev         types.Revision
	format      string
	payload     strings.Builder
	sawPayload  bool
	textDeleted bool
}

// NewParser creates a parser over tokens. logger may be nil.
func NewParser(tokens TokenReader, opts ParserOptions, log *zap.SugaredLogger) *Parser {
	if opts.PayloadFormat == "" {
		opts.PayloadFormat = "application/json"
	}
	return &Parser{
		tokens: tokens,
		opts:   opts,
		logger: logger.Named(log, "parser"),
	}
}

// NewDecoderParser wires a strict xml.Decoder over r.
func NewDecoderParser(r io.Reader, opts ParserOptions, log *zap.SugaredLogger) *Parser {
	d := xml.NewDecoder(r)
	d.Strict = true
	return NewParser(d, opts, log)
}

// Stats returns the counters accumulated so far.
func (p *Parser) Stats() Stats {
	return p.stats
}

// State returns the current nesting context.
func (p *Parser) State() Context {
	return p.state
}

// Next returns the next completed item that passed the filter and has at
// least one diffed revision. It returns io.EOF once the stream is exhausted
// and a *errors.StreamFormatError if the markup is broken; after an error
// every call returns the same error.
func (p *Parser) Next() (*types.Item, error) {
	if p.err != nil {
		return nil, p.err
	}
	for {
		tok, err := p.tokens.Token()
		if err == io.EOF {
			if len(p.stack) > 0 {
				return nil, p.fail(errors.Wrapf(io.ErrUnexpectedEOF, "stream ended inside <%s>", p.stack[len(p.stack)-1]))
			}
			p.err = io.EOF
			return nil, io.EOF
		}
		if err != nil {
			return nil, p.fail(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if err := p.startElement(t); err != nil {
				return nil, p.fail(err)
			}
		case xml.CharData:
			if p.field != "" && len(p.stack) == p.fieldDepth {
				p.appendText(t)
			}
		case xml.EndElement:
			item, err := p.endElement(t)
			if err != nil {
				return nil, p.fail(err)
			}
			if item != nil {
				return item, nil
			}
		}
	}
}

func (p *Parser) fail(cause error) error {
	p.err = errors.NewStreamFormatError(p.opts.File, p.tokens.InputOffset(), cause)
	return p.err
}

func (p *Parser) startElement(t xml.StartElement) error {
	name := t.Name.Local
	p.stack = append(p.stack, name)
	depth := len(p.stack)
	directChild := depth == p.ctxDepth[p.state]+1

	switch {
	case name == elemPage:
		if p.state != OutsideItem {
			return errors.Newf("<page> opened inside %s", p.state)
		}
		p.beginItem(depth)
		return nil
	case name == elemRevision && p.state == InItem && directChild:
		p.beginRevision(depth)
		return nil
	case name == elemContributor && p.state == InRevision && directChild:
		p.state = InContributor
		p.ctxDepth[InContributor] = depth
		return nil
	}

	if p.field == "" && directChild && p.collects(name) {
		p.field = name
		p.fieldDepth = depth
		p.text.Reset()
		if p.state == InRevision && name == elemText {
			p.sawPayload = true
			p.payload.Reset()
			for _, attr := range t.Attr {
				if attr.Name.Local == "deleted" {
					p.textDeleted = true
				}
			}
		}
	}
	return nil
}

// collects reports whether name is a field of the current context.
func (p *Parser) collects(name string) bool {
	switch p.state {
	case InItem:
		return name == elemTitle || name == elemID
	case InRevision:
		switch name {
		case elemID, elemParentID, elemTimestamp, elemComment, elemFormat, elemText:
			return true
		}
	case InContributor:
		// <id> here is the user id and never overwrites item or revision ids
		return name == elemUsername
	}
	return false
}

func (p *Parser) appendText(t xml.CharData) {
	if p.state == InRevision && p.field == elemText {
		// payload text is only kept for items that may be emitted
		if !p.memberDecided || p.member {
			p.payload.Write(t)
		}
		return
	}
	p.text.Write(t)
}

func (p *Parser) endElement(t xml.EndElement) (*types.Item, error) {
	name := t.Name.Local
	if len(p.stack) == 0 {
		return nil, errors.Newf("unexpected </%s> with no open element", name)
	}
	open := p.stack[len(p.stack)-1]
	if open != name {
		return nil, errors.Newf("</%s> closes <%s>", name, open)
	}
	depth := len(p.stack)
	p.stack = p.stack[:depth-1]

	if p.field != "" && depth == p.fieldDepth {
		p.commitField()
		p.field = ""
		return nil, nil
	}

	if p.state != OutsideItem && depth == p.ctxDepth[p.state] {
		switch p.state {
		case InContributor:
			p.state = InRevision
		case InRevision:
			p.finishRevision()
			p.state = InItem
		case InItem:
			p.state = OutsideItem
			return p.finishItem(), nil
		}
	}
	return nil, nil
}

func (p *Parser) commitField() {
	value := strings.TrimSpace(p.text.String())
	switch p.state {
	case InItem:
		switch p.field {
		case elemTitle:
			p.item.EntityID = value
			if !p.memberDecided {
				p.member = p.opts.Filter.Contains(value)
				p.memberDecided = true
			}
		case elemID:
			p.item.ID = p.parseID(value)
		}
	case InRevision:
		switch p.field {
		case elemID:
			p.rev.ID = p.parseID(value)
		case elemParentID:
			p.rev.ParentID = p.parseID(value)
		case elemTimestamp:
			p.rev.Timestamp = value
		case elemComment:
			// comments are opaque; keep inner whitespace and edges untouched
			p.rev.Comment = p.text.String()
		case elemFormat:
			p.format = value
		}
	case InContributor:
		if p.field == elemUsername {
			p.rev.Username = value
		}
	}
}

func (p *Parser) parseID(value string) uint64 {
	if value == "" {
		return 0
	}
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		p.logger.Warnw("Ignoring non-numeric id",
			logger.FieldFile, p.opts.File,
			logger.FieldOffset, p.tokens.InputOffset(),
			"context", p.state.String(),
			"value", value)
		return 0
	}
	return id
}

func (p *Parser) beginItem(depth int) {
	p.state = InItem
	p.ctxDepth[InItem] = depth
	p.item = &types.Item{}
	p.memberDecided = false
	p.member = false
	p.prev = nil
	p.stats.ItemsSeen++
}

func (p *Parser) beginRevision(depth int) {
	p.state = InRevision
	p.ctxDepth[InRevision] = depth
	p.rev = types.Revision{}
	p.format = ""
	p.payload.Reset()
	p.sawPayload = false
	p.textDeleted = false
}

func (p *Parser) finishRevision() {
	p.stats.Revisions++
	if !p.member {
		p.payload.Reset()
		return
	}

	rev := p.rev
	switch {
	case p.format != p.opts.PayloadFormat:
		p.stats.RevisionsWrongFormat++
		p.logger.Debugw("Skipping revision with undiffable format",
			logger.FieldItem, p.item.EntityID,
			logger.FieldRevision, rev.ID,
			logger.FieldFormat, p.format)
	case p.textDeleted || !p.sawPayload:
		p.stats.RevisionsDeleted++
		p.logger.Debugw("Skipping revision without payload text",
			logger.FieldItem, p.item.EntityID,
			logger.FieldRevision, rev.ID)
	default:
		p.diffRevision(&rev)
	}
	p.payload.Reset()

	if rev.Valid || p.opts.KeepInvalidRevisions {
		p.item.Revisions = append(p.item.Revisions, rev)
	}
}

func (p *Parser) diffRevision(rev *types.Revision) {
	doc, err := jsondiff.ParseString(p.payload.String())
	if err != nil {
		perr := errors.NewPayloadParseError(p.item.EntityID, rev.ID, err)
		p.stats.PayloadErrors++
		p.logger.Warnw("Skipping revision with malformed payload",
			logger.FieldFile, p.opts.File,
			logger.FieldItem, p.item.EntityID,
			logger.FieldRevision, rev.ID,
			logger.FieldError, perr)
		return
	}

	base := p.prev
	if base == nil {
		base = jsondiff.EmptyObject()
	}
	ops := jsondiff.Diff(base, doc)
	if ops == nil {
		ops = []jsondiff.Operation{}
	}

	if p.opts.VerifyPatches {
		if err := jsondiff.Verify(base, doc, ops); err != nil {
			p.stats.VerifyFailures++
			p.logger.Errorw("Computed diff does not reproduce revision payload",
				logger.FieldFile, p.opts.File,
				logger.FieldItem, p.item.EntityID,
				logger.FieldRevision, rev.ID,
				logger.FieldError, err)
		}
	}

	rev.Diff = ops
	rev.Valid = true
	p.prev = doc
	p.stats.RevisionsDiffed++
	p.stats.Operations += len(ops)
	if logger.ShouldOutput(logger.Verbosity, logger.OutputRevisionDetail) {
		p.logger.Debugw("Diffed revision",
			logger.FieldItem, p.item.EntityID,
			logger.FieldRevision, rev.ID,
			logger.FieldCount, len(ops))
	}
}

func (p *Parser) finishItem() *types.Item {
	item := p.item
	p.item = nil
	prev := p.prev
	p.prev = nil

	if !p.member {
		p.stats.ItemsFiltered++
		return nil
	}
	if item.ValidRevisions() == 0 {
		p.stats.ItemsWithoutPayload++
		p.logger.Debugw("Dropping item without a diffable revision",
			logger.FieldItem, item.EntityID,
			logger.FieldCount, len(item.Revisions))
		return nil
	}

	item.EntityJSON = prev
	p.stats.ItemsEmitted++
	return item
}
