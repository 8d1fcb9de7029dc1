package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
)

// ErrIdentityConflict is returned when two receipts built from different
// identity key material hash to the same identity.
var ErrIdentityConflict = errors.New("receipt identity conflict")

// Query parameter names under which the tax authority exposes the fiscal
// triple, in priority order. Matching is case-insensitive.
var (
	fiscalDocumentParams = []string{"fd_number", "fd"}
	fiscalRegisterParams = []string{"fn_number", "fn"}
	fiscalMemoryParams   = []string{"fm", "fm_number"}
)

// FiscalTriple is the authority's own receipt key.
type FiscalTriple struct {
	Document string
	Register string
	Memory   string
}

// FiscalTripleFromURL reads the fiscal triple from the URL query. The second
// result is false unless all three parts are present and non-empty.
func FiscalTripleFromURL(u *url.URL) (FiscalTriple, bool) {
	if u == nil {
		return FiscalTriple{}, false
	}
	q := lowerQuery(u.Query())
	ft := FiscalTriple{
		Document: firstParam(q, fiscalDocumentParams),
		Register: firstParam(q, fiscalRegisterParams),
		Memory:   firstParam(q, fiscalMemoryParams),
	}
	if ft.Document == "" || ft.Register == "" || ft.Memory == "" {
		return ft, false
	}
	return ft, true
}

// IdentityKey returns the canonical string that Identity hashes: the fiscal
// triple when the URL carries one, otherwise the absolute URL.
func IdentityKey(u *url.URL) string {
	if ft, ok := FiscalTripleFromURL(u); ok {
		return "fd=" + ft.Document + "&fn=" + ft.Register + "&fm=" + ft.Memory
	}
	return u.String()
}

// Identity returns the stable receipt identity for a lookup URL as a
// lowercase hex SHA-256 digest (64 chars).
func Identity(u *url.URL) string {
	sum := sha256.Sum256([]byte(IdentityKey(u)))
	return hex.EncodeToString(sum[:])
}

// lowerQuery folds parameter names to lower case. Values for names that only
// differ in case are merged in sorted original-name order.
func lowerQuery(v url.Values) map[string][]string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string][]string, len(v))
	for _, name := range names {
		key := strings.ToLower(name)
		out[key] = append(out[key], v[name]...)
	}
	return out
}

func firstParam(q map[string][]string, names []string) string {
	for _, name := range names {
		for _, val := range q[name] {
			if val = strings.TrimSpace(val); val != "" {
				return val
			}
		}
	}
	return ""
}
