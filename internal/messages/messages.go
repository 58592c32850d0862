// Package messages defines the payloads exchanged over the media queues.
// All payloads are JSON; map keys are asset ids.
package messages

// Pending asks the upload workers to ship an entity's staged media to the
// blob store. Published with RetryCount 0 when the entity is created and
// republished with RetryCount+1 on each retried attempt.
type Pending struct {
	EntityID   int64 `json:"entityId"`
	RetryCount int   `json:"retryCount"`
}

// Uploaded reports that every pending asset of the entity now has a blob
// URL. UploadedURLs covers all uploaded assets, including ones finished on
// earlier attempts.
type Uploaded struct {
	EntityID     int64            `json:"entityId"`
	UploadedURLs map[int64]string `json:"uploadedUrls"`
}

// Failed is terminal: the retry budget is exhausted. UploadedURLs carries
// every URL any attempt managed to upload so compensation can delete them.
type Failed struct {
	EntityID     int64            `json:"entityId"`
	UploadedURLs map[int64]string `json:"uploadedUrls"`
	Error        string           `json:"error"`
	RetryCount   int              `json:"retryCount"`
}

// UploadFailedNotice informs the owning user that their media could not be
// stored. Delivery is fire-and-forget.
type UploadFailedNotice struct {
	EntityKind string `json:"entityKind"`
	EntityID   int64  `json:"entityId"`
	Reason     string `json:"reason"`
}
