package domain

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Older data files stored the item date as a plain day.
var legacyDateLayouts = []string{
	time.RFC3339Nano,
	"02.01.2006 15:04",
	"02.01.2006",
}

// UnmarshalJSON accepts both RFC 3339 and day-only item dates.
func (it *Item) UnmarshalJSON(data []byte) error {
	type plain Item
	aux := struct {
		*plain
		AddedAt string `json:"added_date"`
	}{plain: (*plain)(it)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	at, err := parseItemDate(aux.AddedAt)
	if err != nil {
		return err
	}
	it.AddedAt = at
	return nil
}

func parseItemDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range legacyDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("item added_date %q: unrecognized format", s)
}
