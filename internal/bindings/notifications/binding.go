// Package notifications binds the notification inbox API to the query cache
// and mutation engine: list pages and unread counters are cached reads, and
// mark-read, delete and mark-all-read are optimistic writes.
package notifications

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/louisbranch/dataplane/internal/dataplane/mutation"
	"github.com/louisbranch/dataplane/internal/dataplane/query"
	"github.com/louisbranch/dataplane/internal/dataplane/transport"
	"github.com/louisbranch/dataplane/internal/platform/i18n/catalog"
	"github.com/louisbranch/dataplane/internal/platform/requestctx"
	"go.uber.org/zap"
	"golang.org/x/text/message"
)

// Notification is one inbox item.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message,omitempty"`
	IsRead    bool       `json:"isRead"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}

// Page is one cached list page.
type Page struct {
	Items []Notification
	Meta  transport.PageMeta
}

type unreadCount struct {
	Count int `json:"count"`
}

// Level grades a Notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is a user-facing, dismissible outcome message for a write.
type Notice struct {
	Level   Level
	Message string
	Err     error
}

// Notifier receives write outcome notices.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f.
func (f NotifierFunc) Notify(n Notice) {
	if f != nil {
		f(n)
	}
}

// Option customizes a Binding.
type Option func(*Binding)

// WithNotifier sets the outcome notifier.
func WithNotifier(n Notifier) Option {
	return func(b *Binding) {
		if n != nil {
			b.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Binding) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithLocale localizes notice messages. Unknown locales fall back to
// catalog.BaseLocale.
func WithLocale(locale string) Option {
	return func(b *Binding) { b.printer = catalog.Default().Printer(locale) }
}

// Binding exposes the notification resource.
type Binding struct {
	client   *transport.Client
	cache    *query.Cache
	engine   *mutation.Engine
	notifier Notifier
	printer  *message.Printer
	logger   *zap.Logger
}

// New builds a Binding.
func New(client *transport.Client, cache *query.Cache, engine *mutation.Engine, opts ...Option) (*Binding, error) {
	if client == nil {
		return nil, errors.New("notifications: transport client is required")
	}
	if cache == nil {
		return nil, errors.New("notifications: query cache is required")
	}
	if engine == nil {
		return nil, errors.New("notifications: mutation engine is required")
	}
	b := &Binding{
		client:   client,
		cache:    cache,
		engine:   engine,
		notifier: NotifierFunc(nil),
		printer:  catalog.Default().Printer(catalog.BaseLocale),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// PageOf returns the list page held by s.
func PageOf(s query.State) (Page, bool) {
	return query.DataAs[Page](s)
}

// CountOf returns the unread counter held by s.
func CountOf(s query.State) (int, bool) {
	return query.DataAs[int](s)
}

// List observes one list page. An empty p.UserID is taken from ctx when the
// caller stored one with requestctx.WithUserID.
func (b *Binding) List(ctx context.Context, p Params, opts ...query.FetchOption) (*query.Subscription, error) {
	p.UserID = requestctx.UserIDOr(ctx, p.UserID)
	key, err := Key(p)
	if err != nil {
		return nil, err
	}
	params := values(key)
	fetch := func(ctx context.Context) (any, error) {
		env, err := transport.Get[[]Notification](ctx, b.client, "/notifications", params)
		if err != nil {
			return nil, err
		}
		page := Page{Items: env.Data}
		if env.Meta != nil {
			page.Meta = *env.Meta
		}
		return page, nil
	}
	return b.cache.Fetch(ctx, key, fetch, opts...), nil
}

// UnreadCount observes the unread counter of userID, falling back to the
// ctx user.
func (b *Binding) UnreadCount(ctx context.Context, userID string, opts ...query.FetchOption) *query.Subscription {
	key := UnreadKey(requestctx.UserIDOr(ctx, userID))
	params := url.Values{}
	if v := key.Filter("userId"); v != "" {
		params.Set("userId", v)
	}
	fetch := func(ctx context.Context) (any, error) {
		env, err := transport.Get[unreadCount](ctx, b.client, "/notifications/unread-count", params)
		if err != nil {
			return nil, err
		}
		return env.Data.Count, nil
	}
	return b.cache.Fetch(ctx, key, fetch, opts...)
}

// MarkAsRead sets the read flag of one notification. Cached pages show the
// change at once and revert if the server rejects it.
func (b *Binding) MarkAsRead(ctx context.Context, id string, read bool) (Notification, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Notification{}, ErrNotificationIDRequired
	}
	t := &target{id: id}

	endpoint := "/notifications/" + url.PathEscape(id) + "/read"
	write := func(ctx context.Context) (Notification, error) {
		env, err := transport.Call[Notification](ctx, b.client, http.MethodPut, endpoint, map[string]bool{"isRead": read})
		return env.Data, err
	}
	success := "notifications.marked_read"
	if !read {
		success = "notifications.marked_unread"
	}

	return mutation.Mutate(ctx, b.engine, write, mutation.Options[Notification]{
		Affects: singleItem,
		Prepare: t.prepare,
		Optimistic: func(key query.Key, snapshot any) any {
			switch key.Resource {
			case Resource:
				return patchPage(snapshot, func(page Page) Page { return setRead(page, id, read) })
			case UnreadResource:
				if !t.counted(key) || t.item.IsRead == read {
					return snapshot
				}
				if read {
					return adjustCount(snapshot, -1)
				}
				return adjustCount(snapshot, 1)
			}
			return snapshot
		},
		Reconcile: func(key query.Key, data any, result Notification) any {
			if key.Resource != Resource || result.ID == "" {
				return data
			}
			return patchPage(data, func(page Page) Page { return replace(page, result) })
		},
		Invalidate: t.invalidates,
		OnSuccess:  func(Notification) { b.notify(LevelSuccess, success, nil) },
		OnError:    func(err error) { b.notify(LevelError, "notifications.update_failed", err) },
	})
}

// Delete removes one notification. Cached pages drop the item and their
// total at once and restore both if the server rejects the delete.
func (b *Binding) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNotificationIDRequired
	}
	t := &target{id: id}

	endpoint := "/notifications/" + url.PathEscape(id)
	write := func(ctx context.Context) (struct{}, error) {
		_, err := b.client.Execute(ctx, http.MethodDelete, endpoint, nil)
		return struct{}{}, err
	}
	_, err := mutation.Mutate(ctx, b.engine, write, mutation.Options[struct{}]{
		Affects: singleItem,
		Prepare: t.prepare,
		Optimistic: func(key query.Key, snapshot any) any {
			switch key.Resource {
			case Resource:
				return patchPage(snapshot, func(page Page) Page { return remove(page, id) })
			case UnreadResource:
				if t.counted(key) && !t.item.IsRead {
					return adjustCount(snapshot, -1)
				}
			}
			return snapshot
		},
		Invalidate: t.invalidates,
		OnSuccess:  func(struct{}) { b.notify(LevelSuccess, "notifications.deleted", nil) },
		OnError:    func(err error) { b.notify(LevelError, "notifications.delete_failed", err) },
	})
	return err
}

// MarkAllAsRead marks every notification of userID (or the ctx user) read.
func (b *Binding) MarkAllAsRead(ctx context.Context, userID string) error {
	userID = requestctx.UserIDOr(ctx, userID)
	var body any
	if userID != "" {
		body = map[string]string{"userId": userID}
	}
	write := func(ctx context.Context) (struct{}, error) {
		_, err := b.client.Execute(ctx, http.MethodPut, "/notifications/read-all", body)
		return struct{}{}, err
	}
	_, err := mutation.Mutate(ctx, b.engine, write, mutation.Options[struct{}]{
		Affects: forUser(userID),
		Optimistic: func(key query.Key, snapshot any) any {
			switch key.Resource {
			case Resource:
				return patchPage(snapshot, readAll)
			case UnreadResource:
				if _, ok := snapshot.(int); ok {
					return 0
				}
			}
			return snapshot
		},
		OnSuccess: func(struct{}) { b.notify(LevelSuccess, "notifications.all_read", nil) },
		OnError:   func(err error) { b.notify(LevelError, "notifications.all_read_failed", err) },
	})
	return err
}

// singleItem is what a write to one notification may touch: every list
// page and every counter. Which counters change is only known once the
// mutation has pinned the pages holding the item.
var singleItem = query.Or(query.MatchResource(Resource), query.MatchResource(UnreadResource))

// target is the notification a single-item write changes, as cached in the
// pages the mutation pinned.
type target struct {
	id    string
	item  Notification
	known bool
}

func (t *target) prepare(snapshots []query.Snapshot) {
	for _, snap := range snapshots {
		if snap.Key().Resource != Resource {
			continue
		}
		data, ok := snap.Data()
		if !ok {
			continue
		}
		page, ok := data.(Page)
		if !ok {
			continue
		}
		for _, n := range page.Items {
			if n.ID == t.id {
				t.item, t.known = n, true
				return
			}
		}
	}
}

// counted reports whether the counter at key includes the item.
func (t *target) counted(key query.Key) bool {
	if !t.known {
		return false
	}
	user := key.Filter("userId")
	return user == "" || user == t.item.UserID
}

// invalidates selects what to refetch after the write: every list page,
// plus the counters including the item when it was cached and every counter
// otherwise.
func (t *target) invalidates(key query.Key) bool {
	switch key.Resource {
	case Resource:
		return true
	case UnreadResource:
		return !t.known || t.item.UserID == "" || t.counted(key)
	}
	return false
}

func (b *Binding) notify(level Level, key string, err error) {
	if err != nil {
		b.logger.Warn("notification write failed", zap.String("notice", key), zap.Error(err))
	}
	b.notifier.Notify(Notice{Level: level, Message: b.printer.Sprintf(key), Err: err})
}
