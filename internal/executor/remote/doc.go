// Package remote submits transform jobs to an external transcoding service
// over HTTP.
//
// Library references are posted as JSON {mediaRef, spec}. Raw uploads are
// streamed as multipart form data with a "video" file part and a "settings"
// field holding the spec. The service answers {success, output_file,
// processed_files, error}; a processed_files array marks a batch response.
package remote
