package scraper

import (
	"fmt"
	"mailru-backend/internal/mailru/objects"
	"time"

	"dario.cat/mergo"
)

// Selectors locate the parts of the pages the scraper drives.
type Selectors struct {
	History      string `json:"history"`
	HistoryEvent string `json:"history_event"`
	HistoryState string `json:"history_state"`

	GroupList     string `json:"group_list"`
	GroupItem     string `json:"group_item"`
	GroupShowMore string `json:"group_show_more"`
	GroupNoMore   string `json:"group_no_more"`

	JoinButton   string `json:"join_button"`
	JoinPending  string `json:"join_pending"`
	JoinApproved string `json:"join_approved"`

	Event objects.EventSelectors `json:"event"`
	Group objects.GroupSelectors `json:"group"`
}

func DefaultSelectors() Selectors {
	return Selectors{
		History:       objects.DefaultHistory,
		HistoryEvent:  objects.DefaultHistoryEvent,
		HistoryState:  objects.DefaultHistoryState,
		GroupList:     objects.DefaultGroupList,
		GroupItem:     objects.DefaultGroupItem,
		GroupShowMore: objects.DefaultGroupShowMore,
		GroupNoMore:   objects.DefaultGroupNoMore,
		JoinButton:    objects.DefaultJoinButton,
		JoinPending:   objects.DefaultJoinPending,
		JoinApproved:  objects.DefaultJoinApproved,
		Event:         objects.DefaultEventSelectors(),
		Group:         objects.DefaultGroupSelectors(),
	}
}

// loading matches the feed container while more entries are being fetched.
func (s Selectors) loading() string {
	return s.History + "[" + s.HistoryState + `="` + string(StateLoading) + `"]`
}

// loaded matches the feed container once it settled in any other state.
func (s Selectors) loaded() string {
	return s.History + "[" + s.HistoryState + "]:not([" + s.HistoryState + `="` + string(StateLoading) + `"])`
}

type Config struct {
	// CacheSize bounds the number of memoized scrapes, CacheTTL their lifetime.
	CacheSize int
	CacheTTL  time.Duration

	// WaitTimeout bounds a single wait for the feed to change state.
	WaitTimeout time.Duration
	// PollInterval and PollAttempts bound how long a transient state is tolerated.
	PollInterval time.Duration
	PollAttempts int
	// MaxCycles caps the number of load more cycles of a single stream.
	MaxCycles int

	JoinAttempts int
	JoinInterval time.Duration

	// Ignorable are the errors a fan-out skips instead of aborting on.
	Ignorable []error

	Selectors Selectors
}

func DefaultConfig() Config {
	return Config{
		CacheSize:    128,
		CacheTTL:     10 * time.Minute,
		WaitTimeout:  30 * time.Second,
		PollInterval: 500 * time.Millisecond,
		PollAttempts: 60,
		MaxCycles:    1000,
		JoinAttempts: 10,
		JoinInterval: time.Second,
		Ignorable:    []error{ErrNotGroup, ErrNoProfile},
		Selectors:    DefaultSelectors(),
	}
}

// withDefaults fills every unset field from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = d.WaitTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = d.PollAttempts
	}
	if c.MaxCycles <= 0 {
		c.MaxCycles = d.MaxCycles
	}
	if c.JoinAttempts <= 0 {
		c.JoinAttempts = d.JoinAttempts
	}
	if c.JoinInterval <= 0 {
		c.JoinInterval = d.JoinInterval
	}
	if c.Ignorable == nil {
		c.Ignorable = d.Ignorable
	}
	c.Selectors = c.Selectors.withDefaults()
	return c
}

// withDefaults fills every empty selector, nested ones included, from
// DefaultSelectors.
func (s Selectors) withDefaults() Selectors {
	err := mergo.Merge(&s, DefaultSelectors())
	if err != nil {
		panic(fmt.Sprintf("merge default selectors: %v", err))
	}
	return s
}
