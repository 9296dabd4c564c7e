package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tendermatch/internal/model"
)

// DigestStore extends the feed surface with the reads the digest needs.
type DigestStore interface {
	Store
	AlertsSince(ctx context.Context, orgID uuid.UUID, since time.Time) ([]model.Alert, error)
	GetProfile(ctx context.Context, orgID uuid.UUID) (*model.ServiceProfile, error)
}

// DailyDigest renders a markdown summary of the last 24 hours of alerts
// for one profile.
func (s *Service) DailyDigest(ctx context.Context, orgID uuid.UUID, now time.Time) (string, error) {
	store, ok := s.store.(DigestStore)
	if !ok {
		return "", fmt.Errorf("digest: store does not support alert history")
	}

	alerts, err := store.AlertsSince(ctx, orgID, now.Add(-24*time.Hour))
	if err != nil {
		return "", err
	}
	if len(alerts) == 0 {
		return "No new updates for your profile in the last 24 hours.", nil
	}

	profile, err := store.GetProfile(ctx, orgID)
	if err != nil {
		return "", err
	}

	var changes, renewals, newMatches []model.Alert
	for _, alert := range alerts {
		switch alert.Type {
		case model.AlertMaterialChange:
			changes = append(changes, alert)
		case model.AlertRenewal:
			renewals = append(renewals, alert)
		case model.AlertNewMatch:
			newMatches = append(newMatches, alert)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Daily Opportunity Digest for %s\n", profile.Name)
	fmt.Fprintf(&b, "Date: %s\n\n", now.Format("2006-01-02"))

	writeSection := func(title string, section []model.Alert) {
		if len(section) == 0 {
			return
		}
		fmt.Fprintf(&b, "## %s\n", title)
		for _, alert := range section {
			fmt.Fprintf(&b, "- **%s** (Notice: %s)\n", alert.Message, alert.OCID)
		}
		b.WriteString("\n")
	}
	writeSection("Material Changes to Tracked Notices", changes)
	writeSection("Upcoming Renewals / Re-tenders", renewals)
	writeSection("New High-Score Matches", newMatches)

	b.WriteString("---\n*Automated digest from the procurement matching service.*")
	return b.String(), nil
}
