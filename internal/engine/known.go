package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/IshaanNene/AutoHarvest/internal/storage"
	"github.com/IshaanNene/AutoHarvest/internal/types"
)

// KnownIndex is the set of listing URLs already present in the ledger.
// It is built once per cycle and owned by that cycle.
type KnownIndex struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewKnownIndex creates an empty index with the given estimated capacity.
func NewKnownIndex(estimatedCapacity int) *KnownIndex {
	return &KnownIndex{
		seen: make(map[string]struct{}, estimatedCapacity),
	}
}

// LoadKnownIndex collects the url column of the first window ledger rows.
// A missing ledger yields an empty index.
func LoadKnownIndex(ledger *storage.Ledger, window int) (*KnownIndex, error) {
	rows, err := ledger.ReadHead(window)
	if err != nil {
		if errors.Is(err, types.ErrLedgerNotExists) {
			return NewKnownIndex(0), nil
		}
		return nil, err
	}

	idx := NewKnownIndex(len(rows))
	for _, row := range rows {
		if u := row[types.ColumnURL]; u != "" {
			idx.Add(u)
		}
	}
	return idx, nil
}

// IsKnown reports whether the URL (after canonicalization) is in the index.
func (k *KnownIndex) IsKnown(rawURL string) bool {
	hash := hashURL(CanonicalizeURL(rawURL))

	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.seen[hash]
	return ok
}

// Add inserts a URL into the index.
func (k *KnownIndex) Add(rawURL string) {
	hash := hashURL(CanonicalizeURL(rawURL))

	k.mu.Lock()
	defer k.mu.Unlock()
	k.seen[hash] = struct{}{}
}

// Len returns the number of unique URLs in the index.
func (k *KnownIndex) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.seen)
}

// Filter returns the candidates not yet in the index, adding each returned
// URL so repeats within the same call are dropped too.
func (k *KnownIndex) Filter(candidates []types.Candidate) []types.Candidate {
	var fresh []types.Candidate
	for _, c := range candidates {
		if k.IsKnown(c.URL) {
			continue
		}
		k.Add(c.URL)
		fresh = append(fresh, c)
	}
	return fresh
}

// CanonicalizeURL normalizes a URL for comparison:
// lowercases scheme and host, removes the fragment and default ports,
// sorts query parameters and trims a trailing slash.
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	host := u.Hostname()
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = host
	}

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sorted []string
		for _, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for _, v := range vals {
				sorted = append(sorted, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(sorted, "&")
	}

	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}

// hashURL creates a compact hash of a URL string.
func hashURL(canonicalURL string) string {
	h := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(h[:16])
}
