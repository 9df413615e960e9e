// Package propfile parses environment files written in the classic
// properties-file syntax: "#" and "!" comments, "key=value", "key:value" or
// "key value" assignments, backslash line continuation and escape sequences
// including \uXXXX.
//
// Values are taken literally; ${...} references are not expanded.
package propfile

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/magiconair/properties"
)

// Encoding selects how file bytes are decoded before parsing
type Encoding string

const (
	// UTF8 decodes files as UTF-8
	UTF8 Encoding = "utf-8"

	// ISO88591 decodes files as Latin-1, like the classic properties loader
	ISO88591 Encoding = "iso-8859-1"
)

// Pair is one key/value assignment read from a file
type Pair struct {
	Key   string
	Value string
}

// ParseError reports file content that is not valid properties syntax
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse: %v", e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IOError reports a file that could not be opened or read
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Parser parses properties content with a fixed encoding
type Parser struct {
	Encoding Encoding
}

// Parse reads r to the end and parses it. Keys are returned in the order they
// first appear; a key assigned more than once carries its last value.
// Either the whole input parses or no pairs are returned.
func (p Parser) Parse(r io.Reader) ([]Pair, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, &IOError{Err: err}
	}
	return p.parseBytes("", buf)
}

// ParseFile opens and parses the file at path
func (p Parser) ParseFile(path string) ([]Pair, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	return p.parseBytes(path, buf)
}

func (p Parser) parseBytes(path string, buf []byte) ([]Pair, error) {
	enc, err := p.encoding()
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	loader := &properties.Loader{
		Encoding:         enc,
		DisableExpansion: true,
	}
	props, err := loader.LoadBytes(buf)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	keys := props.Keys()
	pairs := make([]Pair, 0, len(keys))
	for _, key := range keys {
		if strings.TrimSpace(key) == "" {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("assignment with empty key")}
		}
		value, _ := props.Get(key)
		pairs = append(pairs, Pair{Key: key, Value: value})
	}
	return pairs, nil
}

func (p Parser) encoding() (properties.Encoding, error) {
	switch Encoding(strings.ToLower(string(p.Encoding))) {
	case "", UTF8, "utf8":
		return properties.UTF8, nil
	case ISO88591, "latin1", "latin-1":
		return properties.ISO_8859_1, nil
	default:
		return 0, fmt.Errorf("unsupported encoding %q", p.Encoding)
	}
}

// Parse parses r as UTF-8 properties content
func Parse(r io.Reader) ([]Pair, error) {
	return Parser{}.Parse(r)
}

// ParseFile parses the UTF-8 properties file at path
func ParseFile(path string) ([]Pair, error) {
	return Parser{}.ParseFile(path)
}
