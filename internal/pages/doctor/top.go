package doctor

import (
	"context"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"opdflow/internal/config"
	"opdflow/internal/pages"
	"opdflow/internal/poll"
	"opdflow/internal/probe"
)

// RHSEntry is what a message shows in the right-hand side list.
type RHSEntry struct {
	ID      string
	Title   string
	Company string
	// MinActionPoints is the least the entry may advertise.
	MinActionPoints int
}

// TopPage covers the portal pages that tease messages outside the
// message list: the right-hand side column and the TODO list.
type TopPage struct {
	pages.Base
	targets config.Targets
}

func NewTopPage(b pages.Base, targets config.Targets) *TopPage {
	return &TopPage{Base: b, targets: targets}
}

// OpenRHS opens the MR-kun top page carrying the right-hand side column.
func (p *TopPage) OpenRHS(ctx context.Context) error {
	return p.Goto(ctx, pages.Join(p.targets.MRKun, "/mt/onepoint/top.htm?tc=sub-m3com"))
}

// ExpectRHS waits until want is listed in the right-hand side column,
// reloading between attempts, then checks its company, thumbnail and
// action points. It returns the advertised points.
func (p *TopPage) ExpectRHS(ctx context.Context, want RHSEntry) (int, error) {
	titled := p.Page.Locator(`a[eop-title*="` + want.Title + `"]`)
	item := p.Page.Locator("#mrTabContent > div > ul > li").Filter(playwright.LocatorFilterOptions{Has: titled}).First()
	if err := p.AwaitVisible(ctx, config.TargetPropagation, "rhs title", item.Locator("a").First(), true); err != nil {
		return 0, err
	}
	text := item.Locator("div.atlas-rhs__article-list__text")
	thumbnail := p.Page.Locator(`img[src*="/mt-img/onepoint/` + want.ID + `/thumbnail.jpeg"]`)

	_, err := p.AwaitText(ctx, config.PageReady, "rhs company",
		text.Locator("span.atlas-rhs__article-list__source"), poll.Contains(want.Company), false)
	if err != nil {
		return 0, err
	}
	if _, err := probe.Await(ctx, p.Waiter, config.PageReady, probe.Count("rhs thumbnail", thumbnail), poll.AtLeast(1), nil); err != nil {
		return 0, err
	}
	points, err := probe.Await(ctx, p.Waiter, config.PageReady,
		probe.Number("rhs action points", text.Locator("span.m3-text--action-point")), poll.AtLeast(want.MinActionPoints), nil)
	if err != nil {
		return 0, err
	}
	p.Log().Info("message in rhs", zap.String("opd_id", want.ID), zap.Int("action_points", points))
	return points, nil
}

// OpenTodo opens the doctor's TODO list.
func (p *TopPage) OpenTodo(ctx context.Context) error {
	return p.Goto(ctx, p.targets.Todo)
}

// AwaitTodo waits until the TODO list asks the doctor to open title,
// reloading between attempts.
func (p *TopPage) AwaitTodo(ctx context.Context, title string) error {
	want := "「" + title + "」を開封する"
	item := hasText(p.Page, "div.lp-todo-items__description > p", want)
	if err := p.AwaitVisible(ctx, config.TargetPropagation, "todo item", item, true); err != nil {
		return err
	}
	return p.ExpectText(ctx, "todo item", item, want)
}
