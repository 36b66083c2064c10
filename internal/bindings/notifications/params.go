package notifications

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/louisbranch/dataplane/internal/dataplane/query"
)

const (
	// Resource is the query key resource of notification list pages.
	Resource = "notifications"
	// UnreadResource is the query key resource of unread counters.
	UnreadResource = "notifications/unread-count"

	defaultPageSize = 10
	maxPageSize     = 100
)

var (
	// ErrInvalidPage indicates a page or page size below one.
	ErrInvalidPage = errors.New("page and page size must be positive")
	// ErrSortUnsupported indicates a sort on an unknown field or on more than
	// one field.
	ErrSortUnsupported = errors.New("unsupported notification sort")
	// ErrNotificationIDRequired indicates a mutation without a target id.
	ErrNotificationIDRequired = errors.New("notification id is required")
)

// sortable lists the fields the list endpoint can order by.
var sortable = []string{"createdAt", "title", "type", "isRead"}

// Params selects one notification list page.
type Params struct {
	UserID string
	Type   string
	IsRead *bool
	Search string
	// OrderBy uses order_by syntax, for example "createdAt desc".
	OrderBy  string
	Page     int
	PageSize int
}

// Key builds the cache key for p. Page defaults to 1 and page size to 10.
func Key(p Params) (query.Key, error) {
	page, size := p.Page, p.PageSize
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = defaultPageSize
	}
	if page < 0 || size < 0 {
		return query.Key{}, ErrInvalidPage
	}
	size = min(size, maxPageSize)

	sort, err := query.ParseSort(p.OrderBy)
	if err != nil {
		return query.Key{}, fmt.Errorf("%w: %w", ErrSortUnsupported, err)
	}
	if len(sort) > 1 {
		return query.Key{}, fmt.Errorf("%w: at most one field, got %q", ErrSortUnsupported, p.OrderBy)
	}
	if err := sort.Validate(sortable...); err != nil {
		return query.Key{}, fmt.Errorf("%w: %w", ErrSortUnsupported, err)
	}

	filters := map[string]string{}
	if v := strings.TrimSpace(p.UserID); v != "" {
		filters["userId"] = v
	}
	if v := strings.TrimSpace(p.Type); v != "" {
		filters["type"] = v
	}
	if p.IsRead != nil {
		filters["isRead"] = strconv.FormatBool(*p.IsRead)
	}
	if v := strings.TrimSpace(p.Search); v != "" {
		filters["search"] = v
	}

	return query.Key{
		Resource: Resource,
		Filters:  filters,
		Sort:     sort,
		Cursor:   query.Cursor{Page: page, PageSize: size},
	}, nil
}

// Values returns the query string for p.
func Values(p Params) (url.Values, error) {
	key, err := Key(p)
	if err != nil {
		return nil, err
	}
	return values(key), nil
}

func values(key query.Key) url.Values {
	v := url.Values{}
	for _, name := range []string{"userId", "type", "isRead", "search"} {
		if s := key.Filter(name); s != "" {
			v.Set(name, s)
		}
	}
	if len(key.Sort) > 0 {
		v.Set("sort", key.Sort[0].Path)
		order := "asc"
		if key.Sort[0].Desc {
			order = "desc"
		}
		v.Set("order", order)
	}
	v.Set("page", strconv.Itoa(key.Cursor.Page))
	v.Set("pageSize", strconv.Itoa(key.Cursor.PageSize))
	return v
}

// UnreadKey is the cache key of a user's unread counter.
func UnreadKey(userID string) query.Key {
	filters := map[string]string{}
	if v := strings.TrimSpace(userID); v != "" {
		filters["userId"] = v
	}
	return query.NewKey(UnreadResource, filters)
}

// forUser selects list pages and counters of userID, or of every user when
// userID is empty.
func forUser(userID string) query.Predicate {
	scope := map[string]string{}
	if v := strings.TrimSpace(userID); v != "" {
		scope["userId"] = v
	}
	return query.Or(
		query.MatchPrefix(Resource, scope),
		query.MatchPrefix(UnreadResource, scope),
	)
}
