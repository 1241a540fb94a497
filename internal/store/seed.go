package store

import (
	"time"

	"civicsos/internal/domain"
)

func defaultDatabase() database {
	return database{
		Users:   []domain.User{},
		Reports: []domain.Report{},
		SOS:     []domain.SOSAlert{},
		Announcements: []domain.Announcement{
			{
				ID:        "seed-network-active",
				Title:     "Smart Network Active",
				Content:   "Connecting all districts in real-time.",
				Source:    "Command Center",
				CreatedAt: time.Now(),
			},
		},
	}
}

// ensureOfficialsLocked seeds the configured official accounts.
// Re-running startup never creates duplicates for the same email.
func (s *Store) ensureOfficialsLocked() {
	for _, official := range s.opts.Officials {
		exists := false
		for i := range s.db.Users {
			if s.db.Users[i].Email == official.Email {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		official.Role = domain.RoleOfficial
		s.db.Users = append(s.db.Users, official)
	}
}
