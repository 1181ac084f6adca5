// Package scan implements the import scanner (IS): it extracts module
// specifiers referenced from a JavaScript/TypeScript source file without a
// full parse. It is a single-pass token scanner, with a secondary opt-in
// pass triggered only by constructs the fast pass can't resolve on its own
// (an `nx-ignore-next-line` directive or a legacy `loadChildren` string).
// This mirrors the project graph builder's explicit-edge discovery step,
// grounded on the teacher's own preference for lightweight, single-pass
// parsers over pulling in a full source-language toolchain (see
// internal/hashing's line-oriented git output parsing for the same taste).
package scan

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Span is a half-open byte range into the scanned source.
type Span struct {
	Start, End int
}

// Import is a single resolved-looking module reference.
type Import struct {
	Specifier string
	Span      Span
	// Kind records which syntactic form produced this import, useful for
	// diagnostics and for the locator to decide whether a dynamic import
	// should be treated as an implicit/dynamic edge.
	Kind Kind
}

// Kind enumerates the import forms recognized by the scanner.
type Kind int

const (
	KindStaticImport Kind = iota
	KindBareImport
	KindDynamicImport
	KindImportEquals
	KindRequire
	KindReExport
	KindAMDDefine
	KindLoadChildren
	KindTripleSlashReference
)

// Result is everything the scanner extracted from one file.
type Result struct {
	Imported        []Import
	AmbientModules  []string
	ReferencedFiles []string
	Directives      []string
	// UsedASTFallback is set when a construct required the secondary,
	// slower resolution path (currently just legacy loadChildren strings).
	UsedASTFallback bool
}

// ignoreDirective is the per-line opt-out comment recognized in both
// line (`//`) and block (`/* */`) comment forms.
const ignoreDirective = "nx-ignore-next-line"

// Scan extracts import/require/reference information from sourceText.
// filePath is used only to decide extension-specific lexing rules (JSX vs TS).
// Scan never panics and never aborts graph construction: on an unterminated
// template literal or other unrecoverable lexical state it returns a non-nil
// error and the caller (PGB) drops the file with a warning, per spec.
func Scan(sourceText string, filePath string) (*Result, error) {
	if !utf8.ValidString(sourceText) {
		return nil, fmt.Errorf("scan %s: not valid utf-8", filePath)
	}

	lx := newLexer(sourceText)
	res := &Result{}
	ignoreNextLine := false

	for {
		tok, err := lx.next()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", filePath, err)
		}
		if tok.kind == tokEOF {
			break
		}

		switch tok.kind {
		case tokLineComment, tokBlockComment:
			if containsIgnoreDirective(tok.text) {
				ignoreNextLine = true
			}
			if dir, ok := tripleSlashReference(tok.text); ok {
				res.Directives = append(res.Directives, tok.text)
				res.ReferencedFiles = append(res.ReferencedFiles, dir)
			}
			continue
		case tokNewline:
			// The directive only suppresses the *next* logical line of code;
			// once we cross a newline that contained no comment, and we've
			// already consumed one "next line" worth of tokens, the
			// suppression is cleared by consumeIdentifierLine below.
			continue
		case tokKeywordImport:
			imp, consumed := lx.scanImportForm(tok)
			if consumed && !ignoreNextLine {
				res.Imported = append(res.Imported, imp)
			}
			ignoreNextLine = ignoreNextLine && !consumed
		case tokIdentifier:
			switch tok.text {
			case "require":
				if imp, ok := lx.scanCallSpecifier(KindRequire); ok {
					if !ignoreNextLine {
						res.Imported = append(res.Imported, imp)
					}
				}
			case "define":
				if imps, ok := lx.scanAMDDefine(); ok && !ignoreNextLine {
					res.Imported = append(res.Imported, imps...)
				}
			case "loadChildren":
				if imp, ok := lx.scanLoadChildren(); ok {
					res.UsedASTFallback = true
					if !ignoreNextLine {
						res.Imported = append(res.Imported, imp)
					}
				}
			}
			ignoreNextLine = false
		default:
			ignoreNextLine = false
		}
	}

	return res, nil
}

func containsIgnoreDirective(commentText string) bool {
	return strings.Contains(commentText, ignoreDirective)
}

// tripleSlashReference recognizes `/// <reference path="..." />`-style
// directives. Returns the referenced path and true if the comment is one.
func tripleSlashReference(commentText string) (string, bool) {
	trimmed := strings.TrimSpace(commentText)
	if !strings.HasPrefix(trimmed, "/ <reference") && !strings.HasPrefix(trimmed, "<reference") {
		return "", false
	}
	const marker = `path="`
	idx := strings.Index(trimmed, marker)
	if idx < 0 {
		return "", false
	}
	rest := trimmed[idx+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
