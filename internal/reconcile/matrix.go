package reconcile

import (
	"context"
	"sort"

	"github.com/bissquit/notify-agent/internal/domain"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// BrowserPushColumn is the key of the synthetic column offered while no
// browser push account exists.
const BrowserPushColumn = "browser-push"

// Column is a destination of the matrix.
type Column struct {
	Key         string                 `json:"key"`
	Type        domain.DestinationType `json:"type"`
	Target      string                 `json:"target,omitempty"`
	AccountType domain.AccountType     `json:"accountType,omitempty"`
	Label       string                 `json:"label"`
	Synthetic   bool                   `json:"synthetic,omitempty"`
}

// Cell is the toggle state of one (subscription, destination) pair.
type Cell struct {
	Column  string `json:"column"`
	Enabled bool   `json:"enabled"`
}

// Row is a subscription of the matrix.
type Row struct {
	ID      int64  `json:"id"`
	App     string `json:"app"`
	Name    string `json:"name"`
	Locked  bool   `json:"locked"`
	Pending bool   `json:"pending"`
	Cells   []Cell `json:"cells"`
}

// Matrix is a snapshot of destinations by subscriptions.
type Matrix struct {
	AppScope string   `json:"app_scope"`
	Loading  bool     `json:"loading"`
	Columns  []Column `json:"columns"`
	Rows     []Row    `json:"rows"`
}

// Matrix builds a snapshot of the effective toggle state.
func (e *Engine) Matrix(ctx context.Context) (*Matrix, error) {
	var (
		subs  []domain.Subscription
		dests []domain.Destination
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		subs, err = e.store.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		dests, err = e.catalog.List(gctx, e.appScope)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	columns := e.columns(dests)

	rows := make([]Row, 0, len(subs))
	for _, s := range subs {
		effective, ok := e.Effective(s.ID)
		if !ok {
			effective = s.Destinations
		}
		_, pending := e.overlay.get(s.ID)

		cells := make([]Cell, 0, len(columns))
		for _, c := range columns {
			cells = append(cells, Cell{
				Column:  c.Key,
				Enabled: !c.Synthetic && effective.Contains(c.Type, c.Target),
			})
		}

		rows = append(rows, Row{
			ID:      s.ID,
			App:     s.App,
			Name:    s.DisplayName(),
			Locked:  e.Locked(s.ID),
			Pending: pending,
			Cells:   cells,
		})
	}
	sortRows(rows)

	return &Matrix{
		AppScope: e.appScope,
		Loading:  e.store.Loading(),
		Columns:  columns,
		Rows:     rows,
	}, nil
}

// columns orders web first, then accounts by label, then feeds by label.
func (e *Engine) columns(dests []domain.Destination) []Column {
	web := domain.SubscriptionDestination{Type: domain.DestinationTypeWeb, Target: domain.WebTarget}
	columns := []Column{{
		Key:    web.Key(),
		Type:   web.Type,
		Target: web.Target,
		Label:  "Web",
	}}

	var accounts, feeds []Column
	hasBrowser := false
	for _, d := range dests {
		col := Column{
			Key:         domain.SubscriptionDestination{Type: d.Type, Target: d.Target()}.Key(),
			Type:        d.Type,
			Target:      d.Target(),
			AccountType: d.AccountType,
			Label:       d.Label,
		}
		switch d.Type {
		case domain.DestinationTypeAccount:
			hasBrowser = hasBrowser || d.IsBrowser()
			accounts = append(accounts, col)
		case domain.DestinationTypeRSS:
			feeds = append(feeds, col)
		}
	}

	cl := collate.New(language.Und, collate.IgnoreCase)
	byLabel := func(cols []Column) {
		sort.SliceStable(cols, func(i, j int) bool {
			return cl.CompareString(cols[i].Label, cols[j].Label) < 0
		})
	}
	byLabel(accounts)
	byLabel(feeds)

	columns = append(columns, accounts...)
	columns = append(columns, feeds...)

	if !hasBrowser && e.push.Supported() {
		columns = append(columns, Column{
			Key:         BrowserPushColumn,
			Type:        domain.DestinationTypeAccount,
			AccountType: domain.AccountTypeBrowser,
			Label:       "Browser",
			Synthetic:   true,
		})
	}
	return columns
}

func sortRows(rows []Row) {
	cl := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(rows, func(i, j int) bool {
		if c := cl.CompareString(rows[i].Name, rows[j].Name); c != 0 {
			return c < 0
		}
		return rows[i].ID < rows[j].ID
	})
}
