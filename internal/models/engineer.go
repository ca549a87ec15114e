package models

import "time"

// Engineer is a team member that tasks can be assigned to. Tasks reference
// engineers weakly: deleting an engineer leaves its tasks unassigned.
type Engineer struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	AvatarURL      string    `json:"avatarUrl,omitempty"`
	DiscordID      string    `json:"discordId,omitempty"`
	GithubUsername string    `json:"githubUsername,omitempty"`
	Skills         []string  `json:"skills,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
