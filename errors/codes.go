package errors

// The sentinel errors this file system's layers can return. Names follow the
// convention of the errno-derived constants in the corpus this module is
// grounded on; only the subset this file system actually raises is kept.
const (
	ErrNotFound            = DiskoError("no such file or directory")
	ErrExists              = DiskoError("file exists")
	ErrInvalidArgument     = DiskoError("invalid argument")
	ErrIsADirectory        = DiskoError("is a directory")
	ErrNotADirectory       = DiskoError("not a directory")
	ErrNameTooLong         = DiskoError("file name too long")
	ErrFileTooLarge        = DiskoError("file too large")
	ErrNoSpaceOnDevice     = DiskoError("no space left on device")
	ErrFileSystemCorrupted = DiskoError("structure needs cleaning")
	ErrIOFailed            = DiskoError("input/output error")
)
