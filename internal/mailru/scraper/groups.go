package scraper

import (
	"context"
	"fmt"
	"iter"
	"mailru-backend/internal/mailru/browser"
	"mailru-backend/internal/mailru/objects"
)

// Groups yields the community tiles of the list at url, pressing the
// "show more" button until the list reports it is complete.
func (s *Scraper) Groups(ctx context.Context, url string) iter.Seq2[objects.GroupItem, error] {
	return func(yield func(objects.GroupItem, error) bool) {
		unlock := s.lockPage(url)
		defer unlock()

		page, err := s.page(ctx, url)
		if err != nil {
			yield(objects.GroupItem{}, err)
			return
		}
		err = s.groups(ctx, page, yield)
		if err != nil {
			s.tel.ReportBroken(report_scraper_groups, err, url)
			yield(objects.GroupItem{}, err)
		}
	}
}

func (s *Scraper) groups(ctx context.Context, page browser.Page, yield func(objects.GroupItem, error) bool) error {
	sel := s.cfg.Selectors
	list, err := page.Query(ctx, sel.GroupList)
	if err != nil {
		return fmt.Errorf("query group list: %w", err)
	}
	if list == nil {
		return fmt.Errorf("%w: no group list at %s", ErrScraper, page.URL())
	}

	offset := 0
	for cycle := 0; cycle < s.cfg.MaxCycles; cycle++ {
		tiles, err := list.QueryAll(ctx, sel.GroupItem)
		if err != nil {
			return fmt.Errorf("query groups: %w", err)
		}
		for i := offset; i < len(tiles); i++ {
			item, err := objects.GroupItemFromElement(ctx, tiles[i], sel.Group)
			if err != nil {
				return fmt.Errorf("group %d: %w", i, err)
			}
			if item.Link == "" {
				continue
			}
			if !yield(item, nil) {
				return nil
			}
		}
		offset = len(tiles)

		done, err := s.groupsComplete(ctx, page)
		if err != nil || done {
			return err
		}

		err = s.click(ctx, page, sel.GroupShowMore)
		if err != nil {
			return fmt.Errorf("show more: %w", err)
		}
		s.metrics.IncScrollCycles()

		err = s.poll(ctx, "group list loading", func(ctx context.Context) (bool, error) {
			tiles, err := list.QueryAll(ctx, sel.GroupItem)
			if err != nil {
				return false, fmt.Errorf("query groups: %w", err)
			}
			if len(tiles) > offset {
				return true, nil
			}
			return s.groupsComplete(ctx, page)
		})
		if err != nil {
			return err
		}
	}
	s.tel.ReportWarning(report_scraper_groups, "stopped after max cycles", page.URL())
	return nil
}

// groupsComplete reports whether the list is marked complete or the show
// more button is gone.
func (s *Scraper) groupsComplete(ctx context.Context, page browser.Page) (bool, error) {
	noMore, err := page.Query(ctx, s.cfg.Selectors.GroupNoMore)
	if err != nil {
		return false, fmt.Errorf("query list state: %w", err)
	}
	if noMore != nil {
		return true, nil
	}
	visible, err := page.Visible(ctx, s.cfg.Selectors.GroupShowMore)
	if err != nil {
		return false, fmt.Errorf("show more visibility: %w", err)
	}
	return !visible, nil
}
