package model

// SavedEmail is a user-curated snapshot of an account's credentials. It is
// stored independently of the live account and outlives it.
type SavedEmail struct {
	ID          string `json:"id"`
	Address     string `json:"address"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	CreatedAt   int64  `json:"createdAt"`
	SiteUsedFor string `json:"siteUsedFor,omitempty"`
}
