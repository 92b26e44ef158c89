package domain

// Notification is an entry of the in-app feed.
type Notification struct {
	ID       string `json:"id"`
	App      string `json:"app"`
	Category string `json:"category"`
	Object   string `json:"object"`
	Content  string `json:"content"`
	Link     string `json:"link"`
	Count    int    `json:"count"`
	Created  int64  `json:"created"`
	Read     int64  `json:"read"`
}

// IsUnread reports whether the notification has not been read yet.
func (n Notification) IsUnread() bool {
	return n.Read == 0
}

// NotificationCount holds the unread and total counters of the feed.
type NotificationCount struct {
	Count int `json:"count"`
	Total int `json:"total"`
}
