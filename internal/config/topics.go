package config

const (
	// TopicIngestDocument is the NSQ topic for uploaded documents awaiting
	// extraction and chunking.
	TopicIngestDocument = "ingest.document"

	// ChannelIngestWorker is the consumer channel for TopicIngestDocument.
	ChannelIngestWorker = "ingest_worker"
)
