package cleanup

import "github.com/raymyers/ralph-dex/pkg/dex"

// ReservedNames is the oracle for identifiers that cannot appear in source output
type ReservedNames interface {
	IsReserved(name string) bool
}

// SanitizeArgNames appends "_" to every parameter name that is a reserved word
// and returns the number of renamed parameters. The receiver is not a parameter.
func SanitizeArgNames(m *dex.Method, names ReservedNames) int {
	renamed := 0
	for _, p := range m.Params {
		if p.Name != "" && names.IsReserved(p.Name) {
			p.Name += "_"
			renamed++
		}
	}
	return renamed
}
