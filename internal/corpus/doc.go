// Package corpus loads the read-only collection of deliverable items.
//
// A corpus file is a YAML or JSON array of items. Input is checked against
// an embedded CUE schema, decoded strictly (unknown keys are errors) and
// normalized to NFC. When the configured file cannot be used, Load falls
// back to a small embedded corpus and reports a *LoadError; a bad corpus
// file is never fatal.
package corpus
