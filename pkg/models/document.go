package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// MaxDocumentBytes is the largest accepted document content size.
const MaxDocumentBytes = 3 << 20 // 3 MiB

// Document is an uploaded corpus file. FileName is relative to the project
// and validated by ValidateFileName.
type Document struct {
	ID          int64     `json:"id"`
	FileName    string    `json:"file_name"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// HashContent returns the SHA-256 hex digest of document content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

const (
	maxFileNameBytes = 1024
	maxSegmentBytes  = 255
)

// Unicode look-alikes for path separators and dots. Rejected even after NFC
// normalization because NFC does not fold them to ASCII.
var lookAlikeRunes = map[rune]bool{
	'⁄': true, // fraction slash
	'∕': true, // division slash
	'⧸': true, // big solidus
	'／': true, // fullwidth solidus
	'⧹': true, // big reverse solidus
	'＼': true, // fullwidth reverse solidus
	'﹨': true, // small reverse solidus
	'。': true, // ideographic full stop
	'．': true, // fullwidth full stop
	'﹒': true, // small full stop
}

// Windows reserved device names, case-insensitive, matched against the
// segment base name (extension stripped).
var windowsReservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// ValidateFileName checks a document file name against the upload rules:
// relative, forward-slash separated, no traversal, no Windows-hostile
// characters or device names, NFC-safe, .txt or .md only.
func ValidateFileName(name string) error {
	if name == "" {
		return fmt.Errorf("file name is empty")
	}
	name = norm.NFC.String(name)

	if len(name) > maxFileNameBytes {
		return fmt.Errorf("file name exceeds %d bytes", maxFileNameBytes)
	}
	if strings.HasPrefix(name, "/") {
		return fmt.Errorf("absolute paths are not allowed")
	}
	if strings.ContainsRune(name, '\\') {
		return fmt.Errorf("backslash is not allowed in file names")
	}
	for _, r := range name {
		if r < 0x20 || lookAlikeRunes[r] {
			return fmt.Errorf("file name contains a disallowed character %q", r)
		}
		switch r {
		case '<', '>', ':', '"', '|', '?', '*':
			return fmt.Errorf("file name contains a disallowed character %q", r)
		}
	}

	segments := strings.Split(name, "/")
	for _, seg := range segments {
		if seg == "" {
			return fmt.Errorf("file name contains an empty path segment")
		}
		if seg == "." || seg == ".." {
			return fmt.Errorf("path traversal is not allowed")
		}
		if len(seg) > maxSegmentBytes {
			return fmt.Errorf("path segment exceeds %d bytes", maxSegmentBytes)
		}
		if strings.HasSuffix(seg, " ") || strings.HasSuffix(seg, ".") {
			return fmt.Errorf("path segment %q ends with a space or dot", seg)
		}
		base := seg
		if i := strings.IndexByte(base, '.'); i >= 0 {
			base = base[:i]
		}
		if windowsReservedNames[strings.ToLower(base)] {
			return fmt.Errorf("path segment %q is a reserved device name", seg)
		}
	}

	last := segments[len(segments)-1]
	lower := strings.ToLower(last)
	if !strings.HasSuffix(lower, ".txt") && !strings.HasSuffix(lower, ".md") {
		return fmt.Errorf("extension must be .txt or .md")
	}
	return nil
}

// ValidateDocumentContent checks upload content size limits.
func ValidateDocumentContent(content string) error {
	if len(content) > MaxDocumentBytes {
		return fmt.Errorf("content exceeds %d bytes", MaxDocumentBytes)
	}
	return nil
}
