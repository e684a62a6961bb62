package core

// Logger is the app-wide logging contract.
// Implementations may inspect args for known types (errors, accounts)
// and forward them to an error reporting service.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
