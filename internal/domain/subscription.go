package domain

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DestinationType is the delivery kind of a subscription destination.
type DestinationType string

// Destination types.
const (
	DestinationTypeWeb     DestinationType = "web"
	DestinationTypeAccount DestinationType = "account"
	DestinationTypeRSS     DestinationType = "rss"
)

// WebTarget is the only valid target of a web destination.
const WebTarget = "default"

// IsValid checks if the destination type is known.
func (t DestinationType) IsValid() bool {
	switch t {
	case DestinationTypeWeb, DestinationTypeAccount, DestinationTypeRSS:
		return true
	}
	return false
}

// SubscriptionDestination is one delivery target of a subscription.
type SubscriptionDestination struct {
	Type   DestinationType `json:"type"`
	Target string          `json:"target"`
}

// Key returns the identity of the destination within a set.
func (d SubscriptionDestination) Key() string {
	return string(d.Type) + "-" + d.Target
}

// Subscription is an (app, category) notification rule with its own destination set.
type Subscription struct {
	ID           int64          `json:"id"`
	App          string         `json:"app"`
	AppName      string         `json:"app_name,omitempty"`
	Type         string         `json:"type,omitempty"`
	Object       string         `json:"object,omitempty"`
	Label        string         `json:"label"`
	Created      int64          `json:"created,omitempty"`
	Destinations DestinationSet `json:"destinations"`
}

var titleCaser = cases.Title(language.Und, cases.NoLower)

// DisplayName returns "<app name>: <label>", falling back to the title-cased app id.
func (s Subscription) DisplayName() string {
	name := s.AppName
	if name == "" {
		name = titleCaser.String(s.App)
	}
	return name + ": " + s.Label
}

// DestinationSet is an order-irrelevant set of destinations, unique by (type, target).
type DestinationSet []SubscriptionDestination

// Contains reports whether the set holds the given destination.
func (s DestinationSet) Contains(t DestinationType, target string) bool {
	for _, d := range s {
		if d.Type == t && d.Target == target {
			return true
		}
	}
	return false
}

// Clone returns a copy of the set that never aliases s.
func (s DestinationSet) Clone() DestinationSet {
	out := make(DestinationSet, len(s))
	copy(out, s)
	return out
}

// Toggle returns a new set with membership of (t, target) flipped.
func (s DestinationSet) Toggle(t DestinationType, target string) DestinationSet {
	if s.Contains(t, target) {
		out := make(DestinationSet, 0, len(s))
		for _, d := range s {
			if d.Type == t && d.Target == target {
				continue
			}
			out = append(out, d)
		}
		return out
	}
	out := s.Clone()
	return append(out, SubscriptionDestination{Type: t, Target: target})
}

// With returns a new set that contains (t, target).
func (s DestinationSet) With(t DestinationType, target string) DestinationSet {
	if s.Contains(t, target) {
		return s.Clone()
	}
	return append(s.Clone(), SubscriptionDestination{Type: t, Target: target})
}

// Normalize drops duplicates and orders the set by type, then target.
func (s DestinationSet) Normalize() DestinationSet {
	seen := make(map[string]bool, len(s))
	out := make(DestinationSet, 0, len(s))
	for _, d := range s {
		d.Target = strings.TrimSpace(d.Target)
		if seen[d.Key()] {
			continue
		}
		seen[d.Key()] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return typeOrder(out[i].Type) < typeOrder(out[j].Type)
		}
		return out[i].Target < out[j].Target
	})
	return out
}

// Equal reports whether both sets hold the same destinations, ignoring order.
func (s DestinationSet) Equal(other DestinationSet) bool {
	a, b := s.Normalize(), other.Normalize()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func typeOrder(t DestinationType) int {
	switch t {
	case DestinationTypeWeb:
		return 0
	case DestinationTypeAccount:
		return 1
	case DestinationTypeRSS:
		return 2
	}
	return 3
}
