package models

// Property keys stored alongside index vectors. The chunk index carries the
// chunk text plus provenance; the vid index carries the vertex id.
const (
	PropContent = "content"
	PropDocID   = "doc_id"
	PropChunkID = "chunk_id"
	PropVid     = "vid"
)
