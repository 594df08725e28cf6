package task

// Store persists task records and allocates ids. Implementations must keep
// the allocator strictly increasing across the store's whole lifetime: an id
// handed out once is never handed out again, even after its record is
// deleted.
type Store interface {
	// Load returns the record for id, or ErrNotFound.
	Load(id string) (Task, error)

	// Save writes the record, creating or replacing it.
	Save(t Task) error

	// Delete removes the record. It reports whether a record existed. The
	// allocator is untouched.
	Delete(id string) (bool, error)

	// List returns all records ordered by numeric id.
	List() ([]Task, error)

	// Allocate returns the next task id and advances the high watermark.
	Allocate() (string, error)

	Close() error
}
