package objects

// Default markup of the my.mail.ru feed and community list.
const (
	eventClass    = "b-history_event_active-area_shift"
	subeventClass = "b-history_event_active-area"

	historyHead = "div.b-history-event_head"
	controls    = historyHead + " div.b-history-event__controls"
	action      = historyHead + " div.b-history-event__action"
	eventTime   = action + " div.b-history-event_time"
	eventStatus = "div.b-history-event__body div.b-history-event__event-textbox_status"

	DefaultHistory      = `div[data-mru-fragment="home/history"]`
	DefaultHistoryEvent = "div.b-history-event"
	DefaultHistoryState = "data-state"

	DefaultGroupList     = "div.groups-catalog"
	DefaultGroupItem     = "div.groups-catalog__item"
	DefaultGroupLink     = "a.groups-catalog__item-link"
	DefaultGroupShowMore = "div.groups-catalog__more button"
	DefaultGroupNoMore   = "div.groups-catalog_nomore"

	DefaultJoinButton   = "span.profile__join-button"
	DefaultJoinPending  = "span.profile__join-pending"
	DefaultJoinApproved = "span.profile__join-approved"
)

// EventSelectors locate the parts of a single feed entry, relative to it.
type EventSelectors struct {
	AstatAttr  string `json:"astat_attr"`
	Event      string `json:"event"`
	Subevent   string `json:"subevent"`
	Controls   string `json:"controls"`
	Author     string `json:"author"`
	AuthorAttr string `json:"author_attr"`
	URL        string `json:"url"`
	Text       string `json:"text"`
	Status     string `json:"status"`
	Links      string `json:"links"`
	Comments   string `json:"comments"`
}

func DefaultEventSelectors() EventSelectors {
	return EventSelectors{
		AstatAttr:  "data-astat",
		Event:      "div." + eventClass,
		Subevent:   "div." + subeventClass + ":not(." + eventClass + ")",
		Controls:   controls,
		Author:     controls + " span.ui-tooltip-action",
		AuthorAttr: "data-event-control-dir",
		URL:        eventTime + " a",
		Text:       "div.b-history-event__body div.b-history-event__event-textbox2",
		Status:     eventStatus,
		Links:      eventStatus + " a",
		Comments:   "div.b-comments__history",
	}
}

// GroupSelectors locate the parts of a community list tile.
type GroupSelectors struct {
	Link     string `json:"link"`
	LinkAttr string `json:"link_attr"`
}

func DefaultGroupSelectors() GroupSelectors {
	return GroupSelectors{
		Link:     DefaultGroupLink,
		LinkAttr: "href",
	}
}
