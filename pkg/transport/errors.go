package transport

import "fmt"

// UnsupportedSchemeError is returned when the URL scheme is unknown.
type UnsupportedSchemeError struct {
	Scheme string
}

// Error implements error.
func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("unsupported transport %q", e.Scheme)
}

// InvalidOptionError is returned when a URL query option can't be parsed.
type InvalidOptionError struct {
	Name  string
	Value string
}

// Error implements error.
func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("invalid option %s=%q", e.Name, e.Value)
}
