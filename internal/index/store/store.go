package store

// Entry is one indexed filesystem object.
type Entry struct {
	Path  string
	Name  string
	Dir   string
	Kind  string // file | dir
	Size  int64
	MTime int64
}

// Query matches file names by substring. Every whitespace-separated
// token of Keywords must appear in the name; Dir scopes results to a
// directory subtree ("" or "/" means everywhere).
type Query struct {
	Dir             string
	Keywords        string
	Offset          int
	Limit           int
	CaseInsensitive bool
}

type Store interface {
	Close() error
	Backend() string

	Insert(entries []Entry) error
	Delete(paths []string) error
	// DeletePrefix removes every entry strictly under dir and returns
	// the number removed.
	DeletePrefix(dir string) (int, error)

	Exists(path string) (bool, error)
	Search(q Query) ([]string, error)
	Count() (int, error)

	// GetMeta returns "" for an absent key.
	GetMeta(key string) (string, error)
	SetMeta(key string, value string) error
}

// BuildPragmaApplier is implemented by backends that can relax
// durability during a bulk scan.
type BuildPragmaApplier interface {
	ApplyBuildPragmas() error
}

type PragmaReader interface {
	QueryPragma(name string) (string, error)
}
