package models

// Section is a top-level node of the knowledge tree. Categories keep
// insertion order.
type Section struct {
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
}

// Document is one rich-text entry addressed by its key.
type Document struct {
	Key  string `json:"key"`
	HTML string `json:"html"`
}

// File is a single attachment payload. Data is base64 in the durable form.
type File struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// FileSet holds the ordered attachments of one key.
type FileSet struct {
	Key   string `json:"key"`
	Files []File `json:"files"`
}

// Graph is the whole document graph, both in memory and on disk (the
// durable file is this struct as JSON). Slices rather than maps so that
// insertion order survives a round trip; unknown fields in the durable
// file are ignored and missing ones default empty.
type Graph struct {
	Version  int        `json:"version"`
	Sections []Section  `json:"sections"`
	Content  []Document `json:"content"`
	Files    []FileSet  `json:"files"`
}
