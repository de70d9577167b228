package opex

import (
	"context"
	"strconv"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"opdflow/internal/config"
	"opdflow/internal/pages"
)

// EditPage edits an existing message.
type EditPage struct {
	pages.Base
	opexURL string
}

func NewEditPage(b pages.Base, opexURL string) *EditPage {
	return &EditPage{Base: b, opexURL: opexURL}
}

func (p *EditPage) body() playwright.Locator {
	return pages.Textbox(p.Page, "PCディテール本文")
}

// Open navigates to the edit form of id and waits for the body field.
func (p *EditPage) Open(ctx context.Context, id string) error {
	url := pages.Join(p.opexURL, "/internal/mrf_management/opd/edit/"+id+"?from_mrkun_view=true")
	if err := p.Goto(ctx, url); err != nil {
		return err
	}
	return p.AwaitVisible(ctx, config.PageReady, "edit form", p.body(), true)
}

// UpdateBody replaces the PC body, copies it to SP and saves.
func (p *EditPage) UpdateBody(ctx context.Context, id, body string) error {
	if err := p.Open(ctx, id); err != nil {
		return err
	}
	err := pages.Steps(
		func() error { return pages.Do("clear body", p.body().Clear()) },
		pages.Fill("pc body", p.body(), body),
		pages.Click("copy body", pages.Button(p.Page, "PCディテール本文をSPディテール本文にコピーする")),
		pages.Click("confirm copy", pages.Button(p.Page, "OK").First()),
		p.save,
	)
	if err == nil {
		p.Log().Info("message updated", zap.String("opd_id", id))
	}
	return err
}

// StopDelivery switches the delivery status to stopped and clears the memo.
func (p *EditPage) StopDelivery(ctx context.Context, id string) error {
	if err := p.Open(ctx, id); err != nil {
		return err
	}
	err := pages.Steps(
		pages.Click("delivery stopped", p.Page.Locator("span.el-radio__inner").First()),
		func() error {
			return pages.Do("clear memo", pages.Textbox(p.Page, "管理メモ").Clear())
		},
		p.save,
	)
	if err == nil {
		p.Log().Info("delivery stopped", zap.String("opd_id", id))
	}
	return err
}

// EnableAutoDelivery turns on split delivery from uploaded files. The
// switch is only saved on an update, never on create.
func (p *EditPage) EnableAutoDelivery(ctx context.Context, id string) error {
	if err := p.Open(ctx, id); err != nil {
		return err
	}
	use := p.Page.Locator(".el-form-item").Filter(playwright.LocatorFilterOptions{HasText: "自動配信"}).
		Locator(".el-radio__label").Filter(playwright.LocatorFilterOptions{HasText: "利用する"}).First()
	err := pages.Steps(
		pages.Click("auto delivery on", use),
		p.save,
	)
	if err == nil {
		p.Log().Info("auto delivery enabled", zap.String("opd_id", id))
	}
	return err
}

// UpdateOpeningLimit sets the opening limit. A limit of zero or less
// removes it.
func (p *EditPage) UpdateOpeningLimit(ctx context.Context, id string, limit int) error {
	if err := p.Open(ctx, id); err != nil {
		return err
	}
	field := spinbutton(p.Page, "#openUserCountLimit")
	steps := []func() error{
		func() error { return pages.Do("clear opening limit", field.Clear()) },
	}
	if limit > 0 {
		steps = append(steps, pages.Fill("opening limit", field, strconv.Itoa(limit)))
	}
	steps = append(steps, p.save)
	return pages.Steps(steps...)
}

func (p *EditPage) save() error {
	return pages.Steps(
		pages.Click("update", pages.Button(p.Page, "更新")),
		pages.Click("confirm update", pages.Button(p.Page, "OK").First()),
	)
}
