package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ormasoftchile/qaflow/pkg/action"
)

// fingerprintLen is how many hex characters of the fingerprint go into names.
const fingerprintLen = 12

// Fingerprint is the hex sha256 of the canonical JSON encoding of seq.
func Fingerprint(seq action.Sequence) (string, error) {
	data, err := action.EncodeJSON(seq)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Name derives the store name from the source artifact and fingerprint:
// "src/components/LoginForm.tsx" becomes "login-form-<12 hex>".
func Name(source, fingerprint string) string {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	base := toKebabCase(stem)
	if len(base) > 120 {
		base = strings.TrimRight(base[:120], "-")
	}
	if base == "" {
		base = "testcase"
	}
	if len(fingerprint) > fingerprintLen {
		fingerprint = fingerprint[:fingerprintLen]
	}
	return base + "-" + fingerprint
}

var (
	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]+`)
)

// toKebabCase lowercases s, splitting camelCase and collapsing every other
// run of characters into a single dash.
func toKebabCase(s string) string {
	s = camelBoundary.ReplaceAllString(s, "$1 $2")
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), "-")
}
