package repository

// Option applies a configuration option to the FileStore.
type Option func(*FileStore)

// WithMaxArtifactSize caps the size of a single artifact in bytes.
func WithMaxArtifactSize(n int64) Option {
	return func(s *FileStore) {
		if n > 0 {
			s.maxSize = n
		}
	}
}
