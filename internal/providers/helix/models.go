// Package helix normalizes Perforce Helix payloads: submitted changelists
// from Helix Core and code reviews from Helix Swarm. Helix timestamps are
// epoch seconds already.
package helix

// Event is the raw payload envelope one adapter invocation consumes.
type Event struct {
	ChangeLists []ChangeList  `json:"change_lists"`
	Reviews     []SwarmReview `json:"reviews"`
}

// ChangeFile is one depot file touched by a changelist. Diff carries the
// raw unified-diff text when the fetcher requested it.
type ChangeFile struct {
	DepotFile string `json:"depotFile"`
	Action    string `json:"action"`
	FileType  string `json:"type"`
	Diff      string `json:"diff"`
}

// ChangeList is a submitted Helix Core changelist.
type ChangeList struct {
	ID          int64        `json:"change"`
	Description string       `json:"desc"`
	User        string       `json:"user"`
	Client      string       `json:"client"`
	Time        int64        `json:"time"`
	Files       []ChangeFile `json:"files"`
}

// SwarmActivity is one Helix Swarm activity entry. Only entries of type
// "review" carry review signal.
type SwarmActivity struct {
	ID     int64  `json:"id"`
	Type   string `json:"type"`
	User   string `json:"user"`
	Action string `json:"action"`
	Time   int64  `json:"time"`
}

// SwarmReview is a Helix Swarm code review.
type SwarmReview struct {
	ID           int64           `json:"id"`
	Author       string          `json:"author"`
	Description  string          `json:"description"`
	State        string          `json:"state"`
	Commits      []int64         `json:"commits"`
	Participants map[string]any  `json:"participants"`
	Activities   []SwarmActivity `json:"activities"`
	Created      int64           `json:"created"`
	Updated      int64           `json:"updated"`
}
