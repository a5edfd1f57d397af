// Package names answers whether an identifier is reserved in the target source language.
package names

// javaReserved holds the Java keywords and literal names
var javaReserved = map[string]bool{}

func init() {
	for _, w := range []string{
		"abstract", "assert", "boolean", "break", "byte", "case", "catch", "char",
		"class", "const", "continue", "default", "do", "double", "else", "enum",
		"extends", "final", "finally", "float", "for", "goto", "if", "implements",
		"import", "instanceof", "int", "interface", "long", "native", "new",
		"package", "private", "protected", "public", "return", "short", "static",
		"strictfp", "super", "switch", "synchronized", "this", "throw", "throws",
		"transient", "try", "void", "volatile", "while",
		"true", "false", "null",
	} {
		javaReserved[w] = true
	}
}

// Set is a reserved-identifier oracle backed by a fixed word list
type Set struct {
	words map[string]bool
}

// Java is the oracle for Java source output
var Java = &Set{words: javaReserved}

// With returns a copy of s that also reserves extra
func (s *Set) With(extra ...string) *Set {
	words := make(map[string]bool, len(s.words)+len(extra))
	for w := range s.words {
		words[w] = true
	}
	for _, w := range extra {
		words[w] = true
	}
	return &Set{words: words}
}

// IsReserved reports whether name cannot be used as an identifier
func (s *Set) IsReserved(name string) bool {
	return s.words[name]
}
