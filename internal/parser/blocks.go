package parser

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/AutoHarvest/internal/config"
	"github.com/IshaanNene/AutoHarvest/internal/types"
)

// Block rule names.
const (
	BlockSummary = "summary"
	BlockSpecs   = "specs"
	BlockPrice   = "price"
)

// BlockIsolator reduces a detail page to its summary, specs and price text.
type BlockIsolator struct {
	rules  []config.ParseRule
	logger *slog.Logger
}

// NewBlockIsolator creates an isolator for the given block rules.
func NewBlockIsolator(rules []config.ParseRule, logger *slog.Logger) *BlockIsolator {
	if len(rules) == 0 {
		rules = config.DefaultBlocks()
	}
	return &BlockIsolator{
		rules:  rules,
		logger: logger.With("component", "block_isolator"),
	}
}

// Isolate extracts the configured blocks from a detail page body. Missing
// blocks are NotFound; a page where no block matched is StatusEmpty. A body
// that cannot be parsed yields parse error sentinels.
func (b *BlockIsolator) Isolate(pageURL, title string, body []byte) types.DetailDocument {
	dd := types.DetailDocument{
		URL:    pageURL,
		Title:  title,
		Blocks: types.ErrorBlocks(types.NotFound),
		Status: types.StatusSuccess,
	}

	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		dd.Blocks = types.ErrorBlocks(types.BlockParseError)
		dd.Status = types.StatusEmpty
		dd.Err = &types.ParseError{URL: pageURL, Err: err}
		return dd
	}
	doc := goquery.NewDocumentFromNode(root)

	found := 0
	for _, rule := range b.rules {
		text, err := b.apply(doc, root, rule)
		if err != nil {
			b.logger.Warn("block rule failed", "block", rule.Name, "selector", rule.Selector, "error", err)
			continue
		}
		if text == "" {
			continue
		}
		found++

		switch rule.Name {
		case BlockSummary:
			dd.Blocks.Summary = types.Value(text)
		case BlockSpecs:
			dd.Blocks.Specs = types.Value(text)
		case BlockPrice:
			dd.Blocks.Price = types.Value(text)
		}
	}

	if found == 0 {
		dd.Status = types.StatusEmpty
	}
	return dd
}

func (b *BlockIsolator) apply(doc *goquery.Document, root *html.Node, rule config.ParseRule) (string, error) {
	switch rule.Type {
	case "", "css":
		return SelectionText(doc.Find(rule.Selector).First()), nil
	case "xpath":
		node, err := htmlquery.Query(root, rule.Selector)
		if err != nil {
			return "", &types.ParseError{Selector: rule.Selector, Err: err}
		}
		if node == nil {
			return "", nil
		}
		return StripText(node), nil
	default:
		return "", fmt.Errorf("unsupported block rule type %q", rule.Type)
	}
}
