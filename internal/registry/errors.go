package registry

// configError signals an invalid provider/model/alias definition.
// It is the only error class that is fatal at boot.
type configError struct{ msg string }

func (e configError) Error() string { return "config: " + e.msg }

// ErrConfig constructs a configError.
func ErrConfig(msg string) error { return configError{msg: msg} }

// IsConfigError reports whether err is a configuration validation failure.
func IsConfigError(err error) bool {
	_, ok := err.(configError)
	return ok
}

// unknownModelError signals a request for a model id or alias not in the registry.
type unknownModelError struct{ name string }

func (e unknownModelError) Error() string { return "unknown model: " + e.name }

// ErrUnknownModel constructs an unknownModelError.
func ErrUnknownModel(name string) error { return unknownModelError{name: name} }

// IsUnknownModel reports whether the error indicates a missing model id or alias.
func IsUnknownModel(err error) bool {
	_, ok := err.(unknownModelError)
	return ok
}
