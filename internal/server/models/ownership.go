package models

import "time"

// Ownership links a user to a content row they uploaded. The (UserID,
// ContentID) pair is unique: repeat uploads of the same bytes by the same
// user resolve to the same row. Rows are created on first upload, never
// updated, and removed only by cascade from User or Content deletion.
type Ownership struct {
	ID        int64
	UserID    int64
	ContentID int64
	// OriginalFilename is the name supplied by the uploader; empty when the
	// upload carried no filename.
	OriginalFilename string
	UploadedAt       time.Time
}
