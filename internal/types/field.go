package types

// Field is the result of extracting one field from a rendered element.
// A missing field is a well-defined state, not an error: one broken field
// must never drop an otherwise-valid Lead. Distinguishing Missing from an
// empty extracted string keeps "intentionally unavailable" separable from
// extractor bugs in logs.
type Field struct {
	value string
	ok    bool
}

// NotAvailable is the placeholder written for fields the source did not render.
const NotAvailable = "N/A"

// Extracted wraps a successfully extracted value.
func Extracted(v string) Field { return Field{value: v, ok: true} }

// Missing is the absent-field result.
func Missing() Field { return Field{} }

// OK reports whether the field was extracted.
func (f Field) OK() bool { return f.ok }

// Value returns the extracted text, or "" when missing.
func (f Field) Value() string { return f.value }

// Or returns the extracted text, or the placeholder when missing.
func (f Field) Or(placeholder string) string {
	if f.ok {
		return f.value
	}
	return placeholder
}
