package main

import "fmt"

// InvalidDateError indicates a date flag that could not be parsed.
type InvalidDateError struct {
	Flag  string
	Value string
}

func (e InvalidDateError) Error() string {
	return fmt.Sprintf("invalid --%s: %q (use YYYY-MM-DD or RFC 3339)", e.Flag, e.Value)
}

// InvalidArgumentError indicates a positional argument of the wrong shape.
type InvalidArgumentError struct {
	Name  string
	Value string
	Want  string
}

func (e InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %q (want %s)", e.Name, e.Value, e.Want)
}

// MissingFlagError indicates a command was run without any of its flags.
type MissingFlagError struct {
	Flags string
}

func (e MissingFlagError) Error() string {
	return "one of " + e.Flags + " is required"
}
