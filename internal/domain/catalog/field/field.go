package field

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is how a field is stored and filtered.
type Kind string

// Field kind constants.
const (
	// Tag is a built-in scalar column (name, status). Filter: equality / any-of.
	Tag Kind = "tag"
	// Array is the list's tag set (e.g. languages). Filter: set overlap.
	Array Kind = "array"
	// Payload is a key path inside the record payload. Filter: equality / any-of on the value at the path.
	Payload Kind = "payload"
	// Text is a payload key path that only feeds semantic content.
	Text Kind = "text"
)

// Built-in field names.
const (
	Name   = "name"
	Status = "status"
)

const maxPathDepth = 8

var identRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,63}$`)

var reservedFieldNames = map[string]bool{
	Name: true, Status: true, "id": true, "match_reason": true,
}

// Options are the optional attributes of a declared field.
type Options struct {
	Path     string // dotted payload path; defaults to the field name
	Semantic bool   // payload value feeds the embedding content
	Display  bool   // field appears in tool results
}

// Field is an immutable value object describing one field of a list schema.
type Field struct {
	name     string
	kind     Kind
	path     []string
	semantic bool
	display  bool
}

// New validates and creates a declared field.
// Tag fields are built in and cannot be declared.
func New(name string, kind Kind, opts Options) (Field, error) {
	if name == "" {
		return Field{}, fmt.Errorf("field name is required")
	}
	if len(name) > 64 {
		return Field{}, fmt.Errorf("field name %q too long (max 64)", name)
	}
	if !identRegex.MatchString(name) {
		return Field{}, fmt.Errorf("field name %q must start with a letter and contain only letters, digits, underscores", name)
	}
	if reservedFieldNames[name] {
		return Field{}, fmt.Errorf("field name %q is reserved", name)
	}

	f := Field{name: name, kind: kind, display: opts.Display}

	switch kind {
	case Array:
		if opts.Path != "" {
			return Field{}, fmt.Errorf("array field %q cannot have a payload path", name)
		}
		f.display = true
	case Payload, Text:
		raw := opts.Path
		if raw == "" {
			raw = name
		}
		path, err := parsePath(raw)
		if err != nil {
			return Field{}, fmt.Errorf("field %q: %w", name, err)
		}
		f.path = path
		f.semantic = opts.Semantic || kind == Text
	case Tag:
		return Field{}, fmt.Errorf("field %q: tag fields are built in", name)
	default:
		return Field{}, fmt.Errorf("invalid field kind %q for %q", kind, name)
	}

	return f, nil
}

// Builtin returns the built-in name or status field.
func Builtin(name string) (Field, bool) {
	switch name {
	case Name:
		return Field{name: Name, kind: Tag, semantic: true, display: true}, true
	case Status:
		return Field{name: Status, kind: Tag, display: true}, true
	default:
		return Field{}, false
	}
}

// Reconstruct creates a Field without validation (storage hydration).
func Reconstruct(name string, kind Kind, path string, semantic, display bool) Field {
	f := Field{name: name, kind: kind, semantic: semantic, display: display}
	if path != "" {
		f.path = strings.Split(path, ".")
	}
	return f
}

func parsePath(raw string) ([]string, error) {
	segments := strings.Split(raw, ".")
	if len(segments) > maxPathDepth {
		return nil, fmt.Errorf("payload path %q too deep (max %d)", raw, maxPathDepth)
	}
	for _, s := range segments {
		if !identRegex.MatchString(s) {
			return nil, fmt.Errorf("invalid payload path segment %q in %q", s, raw)
		}
	}
	return segments, nil
}

// Name returns the field name.
func (f Field) Name() string { return f.name }

// Kind returns how the field is stored and filtered.
func (f Field) Kind() Kind { return f.kind }

// Path returns a copy of the payload path segments (nil for tag and array fields).
func (f Field) Path() []string {
	if f.path == nil {
		return nil
	}
	out := make([]string, len(f.path))
	copy(out, f.path)
	return out
}

// PathString returns the dotted payload path.
func (f Field) PathString() string { return strings.Join(f.path, ".") }

// Filterable reports whether the field may appear in structured filters.
func (f Field) Filterable() bool { return f.kind != Text }

// Semantic reports whether the field feeds the embedding content.
func (f Field) Semantic() bool { return f.semantic }

// Display reports whether the field is returned in tool results.
func (f Field) Display() bool { return f.display }

// Location identifies where the value lives in storage.
// Two fields with the same location compile to the same predicate.
func (f Field) Location() string {
	switch f.kind {
	case Tag:
		return "column:" + f.name
	case Array:
		return "tags"
	default:
		return "payload:" + f.PathString()
	}
}
