package domain

// AccountType identifies the provider behind an account destination.
type AccountType string

// Account types known to the agent. Other values pass through untouched.
const (
	AccountTypeEmail      AccountType = "email"
	AccountTypeBrowser    AccountType = "browser"
	AccountTypeURL        AccountType = "url"
	AccountTypePushbullet AccountType = "pushbullet"
)

// Destination is a catalog entry a subscription can target.
type Destination struct {
	ID          string          `json:"id"`
	Type        DestinationType `json:"type"`
	AccountType AccountType     `json:"accountType,omitempty"`
	Label       string          `json:"label"`
	Identifier  string          `json:"identifier,omitempty"`
}

// Target returns the value used as SubscriptionDestination.Target.
func (d Destination) Target() string {
	return d.ID
}

// IsBrowser reports whether the destination is a browser-push account.
func (d Destination) IsBrowser() bool {
	return d.Type == DestinationTypeAccount && d.AccountType == AccountTypeBrowser
}

// Feed is an RSS token destination.
type Feed struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Token   string `json:"token,omitempty"`
	Created int64  `json:"created"`
	Enabled int    `json:"enabled"`
}
