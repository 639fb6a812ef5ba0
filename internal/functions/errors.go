package functions

import "fmt"

// UnknownFunctionError is returned when a call names no registered function.
type UnknownFunctionError struct {
	Name      string
	Available string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("Unknown function '%s'. Available: %s", e.Name, e.Available)
}

// ArityError is returned when a function is called with an argument count
// outside its signature.
type ArityError struct {
	Name string
	Got  int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("Wrong arguments for '%s': got %d args", e.Name, e.Got)
}

// ArgTypeError is returned when an argument has the right position but an
// unusable type or value.
type ArgTypeError struct {
	Name    string
	Message string
}

func (e *ArgTypeError) Error() string {
	return fmt.Sprintf("%s(): %s", e.Name, e.Message)
}

func argTypeErrorf(name, format string, args ...any) error {
	return &ArgTypeError{Name: name, Message: fmt.Sprintf(format, args...)}
}
