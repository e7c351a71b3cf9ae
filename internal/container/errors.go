package container

import "fmt"

// InfraError marks a container-runtime failure (daemon unreachable, missing
// image, create/start refusal). It is a distinct category from a non-zero
// exit of the executed command, which is reported as data, and must never
// be downgraded into one.
type InfraError struct {
	Op  string
	Err error
}

func (e InfraError) Error() string {
	return fmt.Sprintf("container runtime: %s: %v", e.Op, e.Err)
}

func (e InfraError) Unwrap() error {
	return e.Err
}

// infraErr wraps a runtime error with the operation that hit it.
func infraErr(op string, err error) error {
	return InfraError{Op: op, Err: err}
}
