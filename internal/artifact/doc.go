// Package artifact stores the immutable index artifacts (vector file, id file,
// manifest) produced by the offline builder. Backends: local filesystem,
// in-memory, MinIO and Amazon S3.
package artifact
