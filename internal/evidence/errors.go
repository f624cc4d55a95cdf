package evidence

import "errors"

var (
	// ErrInvalidArtifact indicates the artifact path is empty
	ErrInvalidArtifact = errors.New("invalid artifact path")

	// ErrSourceUnreadable indicates the original artifact could not be hashed;
	// no package is produced
	ErrSourceUnreadable = errors.New("source artifact unreadable")

	// ErrPackageDir indicates the package directory could not be allocated
	ErrPackageDir = errors.New("failed to allocate package directory")

	// ErrPersist indicates the record could not be written to disk
	ErrPersist = errors.New("failed to persist evidence record")

	// ErrRecordExists indicates a record is already present; records are never overwritten
	ErrRecordExists = errors.New("evidence record already exists")

	// ErrModTime indicates the packaged copy exists but its modification time
	// could not be set to the original's
	ErrModTime = errors.New("failed to preserve modification time")

	// ErrInvalidRecord indicates a loaded record failed validation
	ErrInvalidRecord = errors.New("invalid evidence record")

	// ErrMissingDependency indicates the assembler was built without a required collaborator
	ErrMissingDependency = errors.New("assembler dependency missing")
)
