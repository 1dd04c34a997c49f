package domain

import "strings"

// PairKey identifies the unordered pair {a, b}. Ids must not contain "_" for
// the key to stay injective; transport ids are numeric.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// splitPairKey reverses PairKey.
func splitPairKey(key string) (string, string, bool) {
	a, b, ok := strings.Cut(key, "_")
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}

type Friend struct {
	ID     string `json:"id"`
	Handle string `json:"username"`
	Alias  string `json:"alias,omitempty"`
}

// DisplayName prefers the owner's alias.
func (f Friend) DisplayName() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Handle
}

type UserStats struct {
	Friends          int    `json:"friends"`
	TotalItems       int    `json:"total_items"`
	MostActiveHandle string `json:"most_active,omitempty"`
	MostActiveItems  int    `json:"most_active_items,omitempty"`
}

type FriendGallery struct {
	Friend Friend `json:"friend"`
	Items  int    `json:"items"`
}

type UserReport struct {
	User       Identity        `json:"user"`
	Banned     bool            `json:"banned"`
	TotalItems int             `json:"total_items"`
	Galleries  []FriendGallery `json:"galleries"`
}

type Stats struct {
	Users       int `json:"users"`
	Banned      int `json:"banned"`
	Galleries   int `json:"galleries"`
	Items       int `json:"items"`
	Photos      int `json:"photos"`
	Videos      int `json:"videos"`
	Documents   int `json:"documents"`
	ActiveChats int `json:"active_chats"`
}
