package types

import (
	"time"

	"github.com/google/uuid"
)

// Candidate is a listing reference harvested from a listing page.
type Candidate struct {
	Title string
	URL   string
}

// Status reports the outcome of obtaining a detail page.
type Status int

const (
	StatusSuccess Status = iota
	StatusEmpty
	StatusFetchError
	StatusParseError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusEmpty:
		return "empty"
	case StatusFetchError:
		return "fetch_error"
	case StatusParseError:
		return "parse_error"
	default:
		return "unknown"
	}
}

// Block sentinels written in place of text when a detail page could not be
// read. The extractor treats both as an absent block.
const (
	BlockLoadError  Value = "Ошибка загрузки"
	BlockParseError Value = "Ошибка парсинга"
	BlockError      Value = "Ошибка"
)

// Blocks are the raw text blocks isolated from a detail page.
type Blocks struct {
	Summary Value
	Specs   Value
	Price   Value
}

// ErrorBlocks returns Blocks with every block set to v.
func ErrorBlocks(v Value) Blocks {
	return Blocks{Summary: v, Specs: v, Price: v}
}

// DetailDocument is a detail page reduced to its text blocks.
type DetailDocument struct {
	URL    string
	Title  string
	Blocks Blocks
	Status Status
	Err    error
}

// Mode selects how a cycle discovers listings.
type Mode int

const (
	ModeBootstrap Mode = iota
	ModeIncremental
)

func (m Mode) String() string {
	if m == ModeBootstrap {
		return "bootstrap"
	}
	return "incremental"
}

// Cycle is one iteration of the discovery loop.
type Cycle struct {
	Seq       int
	ID        string
	StartedAt time.Time
	Mode      Mode
}

// NewCycle starts a cycle with a fresh ID.
func NewCycle(seq int, mode Mode) Cycle {
	return Cycle{
		Seq:       seq,
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Mode:      mode,
	}
}
