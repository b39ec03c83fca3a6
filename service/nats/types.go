package nats

import (
	"time"

	"github.com/brojonat/craftmint/service/purchase"
)

// PurchaseEvent is published to "purchases.{owner_account}" in JetStream
// whenever an artifact is issued for a verified payment.
type PurchaseEvent struct {
	// Payment identifiers
	TransactionReference string `json:"transaction_reference"`
	OwnerAccount         string `json:"owner_account"`

	// Issued artifact
	ArtifactID  string  `json:"artifact_id"`
	ArtifactURI *string `json:"artifact_uri,omitempty"`
	ImageURI    string  `json:"image_uri"`

	// Timing information
	IssuedAt    time.Time `json:"issued_at"`
	PurchasedAt time.Time `json:"purchased_at"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// FromNotification converts a purchase notification to a PurchaseEvent for publishing.
func FromNotification(n purchase.Notification) *PurchaseEvent {
	return &PurchaseEvent{
		TransactionReference: n.TransactionReference,
		OwnerAccount:         n.Artifact.Owner,
		ArtifactID:           n.Artifact.ID,
		ArtifactURI:          n.Artifact.URI,
		ImageURI:             n.Artifact.ImageURI,
		IssuedAt:             n.Artifact.IssuedAt,
		PurchasedAt:          n.PurchasedAt,
		PublishedAt:          time.Now().UTC(),
	}
}

// Subject returns the JetStream subject the event is published to.
func (e *PurchaseEvent) Subject() string {
	return SubjectPrefix + e.OwnerAccount
}
