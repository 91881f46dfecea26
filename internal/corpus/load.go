package corpus

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

//go:embed fallback.yaml
var fallbackYAML []byte

// FallbackSource is the Source of the embedded corpus.
const FallbackSource = "fallback"

// LoadError reports that the configured corpus could not be used. Load
// returns it alongside the fallback corpus; callers log it and continue.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load corpus %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError returns true if err is a corpus load error.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// Load reads a YAML or JSON corpus from path.
//
// On a missing, unreadable or invalid source it returns the embedded fallback
// corpus together with a *LoadError. The returned corpus is never nil.
func Load(path string) (*Corpus, error) {
	if path == "" {
		return Fallback(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Fallback(), &LoadError{Path: path, Err: err}
	}
	items, err := Parse(data)
	if err != nil {
		return Fallback(), &LoadError{Path: path, Err: err}
	}
	c, err := New(path, items)
	if err != nil {
		return Fallback(), &LoadError{Path: path, Err: err}
	}
	return c, nil
}

// Parse decodes and validates corpus data. JSON input is accepted as YAML.
func Parse(data []byte) ([]Item, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	// Strict decode: unknown keys are rejected
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var items []Item
	if err := decoder.Decode(&items); err != nil {
		if errors.Is(err, io.EOF) {
			return []Item{}, nil
		}
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// Validate checks corpus data against the embedded CUE schema.
func Validate(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse corpus: %w", err)
	}
	if raw == nil {
		return nil
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Corpus"))

	v := ctx.Encode(raw)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

var fallback = sync.OnceValue(func() *Corpus {
	items, err := Parse(fallbackYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded corpus: %v", err))
	}
	c, err := New(FallbackSource, items)
	if err != nil {
		panic(fmt.Sprintf("embedded corpus: %v", err))
	}
	return c
})

// Fallback returns the embedded corpus.
func Fallback() *Corpus {
	return fallback()
}
