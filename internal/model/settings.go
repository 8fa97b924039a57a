package model

// UserSettings are per-user preferences stored by the mail API. The
// client forwards them verbatim.
type UserSettings struct {
	DiscordWebhookURL string `json:"discord_webhook_url"`

	// SelectedDomainID, if non-empty, must reference a Domain returned
	// by the same session.
	SelectedDomainID string `json:"selected_domain_id"`
}

// Domain is a configured mail storage domain.
type Domain struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Bucket      string `json:"bucket"`
	Region      string `json:"region"`
	AccessKeyID string `json:"access_key_id"`
	SecretKey   string `json:"secret_key"`
	Endpoint    string `json:"endpoint"`
}

// FindDomain returns the domain with the given ID.
func FindDomain(domains []Domain, id string) (Domain, bool) {
	for _, d := range domains {
		if d.ID == id {
			return d, true
		}
	}
	return Domain{}, false
}
