package syncer

import "github.com/githubbar/refwatch/internal/models"

// Reconcile applies the conflict rule between a local and an inbound
// snapshot of the same match: the larger LastUpdated wins, with no
// field-level merge. Ties keep the local copy, which makes redelivery
// of the same payload idempotent. By construction only the wearable
// mutates a live match, so this is safe for a live sporting event.
func Reconcile(local *models.Match, inbound models.Match) models.Match {
	if local == nil {
		return inbound
	}
	if inbound.LastUpdated.After(local.LastUpdated) {
		return inbound
	}
	return *local
}
