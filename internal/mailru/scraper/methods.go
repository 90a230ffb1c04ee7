package scraper

import (
	"context"
	"fmt"
	"mailru-backend/internal/mailru/objects"
	"mailru-backend/internal/mailru/session"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 10

	methodUsersGetInfo      = "users.getInfo"
	methodStreamGetByAuthor = "stream.getByAuthor"
)

func truthy(params session.Params, key string) bool {
	value, ok := params.String(key)
	if !ok {
		return false
	}
	switch strings.ToLower(value) {
	case "", "0", "false", "no":
		return false
	}
	return true
}

func intParam(params session.Params, key string, fallback int) (int, error) {
	value, ok := params.String(key)
	if !ok || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func requireParam(params session.Params, key string) (string, error) {
	value, ok := params.String(key)
	if !ok || value == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return value, nil
}

// profile fetches the users.getInfo entry of uid. Sessions that pass errors
// through may answer with an error payload instead of a list, it is
// returned as passthrough.
func (s *Scraper) profile(ctx context.Context, uid string) (profile map[string]any, passthrough any, err error) {
	res, err := s.api.Call(ctx, methodUsersGetInfo, session.Params{"uids": uid})
	if err != nil {
		return nil, nil, err
	}
	list, ok := res.([]any)
	if !ok {
		if s.session.PassError() {
			return nil, res, nil
		}
		err := fmt.Errorf("%w: unexpected %s response %T", ErrScraper, methodUsersGetInfo, res)
		s.tel.ReportBroken(report_scraper_profile, err, uid)
		return nil, nil, err
	}
	if len(list) == 0 {
		return nil, nil, fmt.Errorf("%w: uid %s", ErrNoProfile, uid)
	}
	profile, ok = list[0].(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unexpected profile %T", ErrScraper, list[0])
	}
	return profile, nil, nil
}

func profileLink(profile map[string]any) (string, error) {
	link, _ := profile["link"].(string)
	if link == "" {
		return "", fmt.Errorf("%w: profile has no link", ErrScraper)
	}
	return link, nil
}

// ProfileLink resolves uid to the url of its profile page. A passthrough
// error payload is returned when the session passes API errors through.
func (s *Scraper) ProfileLink(ctx context.Context, uid string) (link string, passthrough any, err error) {
	profile, passthrough, err := s.profile(ctx, uid)
	if err != nil || passthrough != nil {
		return "", passthrough, err
	}
	link, err = profileLink(profile)
	return link, nil, err
}

// ScrapeFeed scrapes the feed at url like Scrape, memoizing the result only
// for repeated calls after the same skip id. Without a skip id every call
// scrapes again.
func (s *Scraper) ScrapeFeed(ctx context.Context, url, skip string, limit int) ([]objects.Event, error) {
	bust := skip
	if bust == "" {
		bust = uuid.NewString()
	}
	return s.Scrape(ctx, url, skip, limit, bust)
}

// community fetches the profile of uid and checks that it is a community.
func (s *Scraper) community(ctx context.Context, uid string) (profile map[string]any, passthrough any, err error) {
	profile, passthrough, err = s.profile(ctx, uid)
	if err != nil || passthrough != nil {
		return nil, passthrough, err
	}
	link, err := profileLink(profile)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := objects.CommunityName(link); !ok {
		return nil, nil, fmt.Errorf("%w: uid %s", ErrNotGroup, uid)
	}
	return profile, nil, nil
}

// streamGetByAuthor returns the events of the stream of uid. With the
// scrape flag the events are scraped from the profile page, otherwise the
// REST method is called.
func (s *Scraper) streamGetByAuthor(ctx context.Context, params session.Params) (any, error) {
	uid, err := requireParam(params, "uid")
	if err != nil {
		return nil, err
	}
	skip, _ := params.String("skip")
	limit, err := intParam(params, "limit", DefaultLimit)
	if err != nil {
		return nil, err
	}

	if !truthy(params, "scrape") {
		rest := session.Params{"uid": uid, "limit": limit}
		if skip != "" {
			rest["skip"] = skip
		}
		return s.api.Call(ctx, methodStreamGetByAuthor, rest)
	}

	link, passthrough, err := s.ProfileLink(ctx, uid)
	if err != nil || passthrough != nil {
		return passthrough, err
	}
	return s.ScrapeFeed(ctx, link, skip, limit)
}

// groupsGet returns the full profiles of the communities uid belongs to,
// listed from the groups page of the profile.
func (s *Scraper) groupsGet(ctx context.Context, params session.Params) (any, error) {
	uid, err := requireParam(params, "uid")
	if err != nil {
		return nil, err
	}
	offset, err := intParam(params, "offset", 0)
	if err != nil {
		return nil, err
	}
	limit, err := intParam(params, "limit", 0)
	if err != nil {
		return nil, err
	}

	profile, passthrough, err := s.profile(ctx, uid)
	if err != nil || passthrough != nil {
		return passthrough, err
	}
	link, err := profileLink(profile)
	if err != nil {
		return nil, err
	}

	var items []objects.GroupItem
	seen := 0
	for item, err := range s.Groups(ctx, strings.TrimSuffix(link, "/")+"/groups") {
		if err != nil {
			return nil, err
		}
		seen++
		if seen <= offset {
			continue
		}
		items = append(items, item)
		if limit > 0 && len(items) >= limit {
			break
		}
	}

	groups := []any{}
	for _, item := range items {
		group, err := s.resolveGroup(ctx, item)
		if err != nil {
			if s.ignorable(err) {
				s.tel.ReportDebug("skipping group", item.Link, err)
				continue
			}
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// resolveGroup turns a list tile into the full community profile, first
// resolving the short name to a uid through the public endpoint.
func (s *Scraper) resolveGroup(ctx context.Context, item objects.GroupItem) (any, error) {
	name, ok := item.Name()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotGroup, item.Link)
	}
	res, err := s.session.PublicRequest(ctx, "community", name)
	if err != nil {
		return nil, err
	}
	body, _ := res.(map[string]any)
	raw, ok := body["uid"]
	if !ok || raw == nil {
		return nil, fmt.Errorf("%w: community %s did not resolve to a uid", ErrNoProfile, name)
	}
	profile, passthrough, err := s.profile(ctx, session.FormatValue(raw))
	if err != nil {
		return nil, err
	}
	if passthrough != nil {
		return passthrough, nil
	}
	return profile, nil
}

// groupsGetInfo returns the community profiles of the comma joined uids.
func (s *Scraper) groupsGetInfo(ctx context.Context, params session.Params) (any, error) {
	if _, err := requireParam(params, "uids"); err != nil {
		return nil, err
	}
	return s.Multicall(ctx, "uids", params, ErrEmptyGroups, func(ctx context.Context, params session.Params) (any, error) {
		uid, _ := params.String("uids")
		profile, passthrough, err := s.community(ctx, uid)
		if err != nil {
			return nil, err
		}
		if passthrough != nil {
			return passthrough, nil
		}
		return profile, nil
	})
}

// groupsJoin joins the community group_id and reports the resulting state.
func (s *Scraper) groupsJoin(ctx context.Context, params session.Params) (any, error) {
	uid, err := requireParam(params, "group_id")
	if err != nil {
		return nil, err
	}
	profile, passthrough, err := s.community(ctx, uid)
	if err != nil || passthrough != nil {
		return passthrough, err
	}
	link, err := profileLink(profile)
	if err != nil {
		return nil, err
	}
	state, err := s.Join(ctx, link)
	if err != nil {
		return nil, err
	}
	return map[string]any{"group_id": uid, "state": string(state)}, nil
}
