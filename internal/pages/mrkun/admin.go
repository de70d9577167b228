// Package mrkun drives the MR-kun legacy admin tool and its QA helpers.
package mrkun

import (
	"context"
	"net/url"
	"strings"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"opdflow/internal/config"
	"opdflow/internal/errs"
	"opdflow/internal/pages"
	"opdflow/internal/probe"
)

const (
	confirmTitle = "確認画面"
	resultTitle  = "結果画面"
	resultHeader = "ワンポイント医療情報管理 - ターゲットリスト変更結果画面"
)

var loaded = playwright.PageWaitForLoadStateOptions{State: playwright.LoadStateDomcontentloaded}

// AdminPage is the message list of the admin tool, from which target
// lists are edited in a popup.
type AdminPage struct {
	pages.Base
	mrkunURL string
}

func NewAdminPage(b pages.Base, mrkunURL string) *AdminPage {
	return &AdminPage{Base: b, mrkunURL: mrkunURL}
}

// listURL filters the message list by id or memo. Empty values match all.
func (p *AdminPage) listURL(id, memo string) string {
	q := url.Values{}
	q.Set("pointCompanyCd", "")
	q.Set("productName", "")
	q.Set("memo", memo)
	q.Set("opdId", id)
	q.Set("action", "view")
	return pages.Join(p.mrkunURL, "/admin/restricted/mt/OnePointDetail/list.jsp?"+q.Encode())
}

func (p *AdminPage) changeLink() playwright.Locator {
	return p.Page.GetByRole(*playwright.AriaRoleLink, playwright.PageGetByRoleOptions{Name: "変更..."})
}

// Open shows the list filtered to message id.
func (p *AdminPage) Open(ctx context.Context, id string) error {
	if err := p.Goto(ctx, p.listURL(id, "")); err != nil {
		return err
	}
	return p.AwaitVisible(ctx, config.PageReady, "target list link", p.changeLink(), true)
}

// AwaitNewestByMemo reloads the list filtered by memo until its first
// message is another than sourceID, and returns that message's ID.
func (p *AdminPage) AwaitNewestByMemo(ctx context.Context, memo, sourceID string) (string, error) {
	if err := p.Goto(ctx, p.listURL("", memo)); err != nil {
		return "", err
	}
	first := p.Page.Locator("table.listTable > tbody > tr").First().Locator("td.cell_1 > p").First().Locator("a").First()
	id, err := p.AwaitText(ctx, config.EntityCreated, "newest message by memo", first, other(sourceID), true)
	if err != nil {
		return "", err
	}
	id = strings.TrimSpace(id)
	p.Log().Info("message found by memo", zap.String("memo", memo), zap.String("opd_id", id), zap.String("source_id", sourceID))
	return id, nil
}

// other accepts a listed ID other than id.
func other(id string) func(string) bool {
	return func(s string) bool {
		s = strings.TrimSpace(s)
		return s != "" && s != id
	}
}

// SetupTarget adds the doctors identified by systemCodes to the target
// list of message id. Codes may be separated by any whitespace.
func (p *AdminPage) SetupTarget(ctx context.Context, id, systemCodes string) error {
	codes := FormatCodes(systemCodes)
	if codes == "" {
		return errs.New(errs.Infrastructure, "setup target", "no system codes given")
	}
	if err := p.Open(ctx, id); err != nil {
		return err
	}
	popup, err := p.Page.ExpectPopup(func() error { return p.changeLink().Click() })
	if err != nil {
		return errs.Infra("open target list", err)
	}
	defer func() {
		if !popup.IsClosed() {
			_ = popup.Close()
		}
	}()
	if err := popup.WaitForLoadState(loaded); err != nil {
		return errs.Infra("open target list", err)
	}

	target := p.Base
	target.Page = popup
	if err := addCodes(ctx, target, codes); err != nil {
		return err
	}
	p.Log().Info("target added", zap.String("opd_id", id), zap.Int("codes", strings.Count(codes, "\n")+1))
	return nil
}

// addCodes submits codes on the target list popup, passing the confirm
// screen the tool shows when some codes raise warnings.
func addCodes(ctx context.Context, b pages.Base, codes string) error {
	field := b.Page.Locator(`textarea[name="targetPersonCode"]`).Or(b.Page.Locator("textarea")).First()
	err := pages.Steps(
		pages.Fill("system codes", field, codes),
		pages.Click("add codes", pages.Button(b.Page, "追加")),
		func() error { return pages.Do("add codes", b.Page.WaitForLoadState(loaded)) },
	)
	if err != nil {
		return err
	}

	title, err := probe.Await(ctx, b.Waiter, config.StatusTransition, probe.Title("target list screen", b.Page),
		func(t string) bool { return strings.Contains(t, confirmTitle) || strings.Contains(t, resultTitle) }, nil)
	if err != nil {
		return err
	}
	if strings.Contains(title, confirmTitle) {
		warned, err := b.Visible(ctx, "target warning", b.Page.Locator("h3.err_msg"))
		if err != nil {
			return err
		}
		if warned {
			b.Log().Warn("target list raised warnings, accepting them")
			if err := pages.Do("accept warnings", b.Page.Locator("input#warning").Check()); err != nil {
				return err
			}
		}
		err = pages.Steps(
			pages.Click("register targets", b.Page.Locator("button#register_button")),
			func() error { return pages.Do("register targets", b.Page.WaitForLoadState(loaded)) },
		)
		if err != nil {
			return err
		}
	}

	header := b.Page.Locator("h1").Filter(playwright.LocatorFilterOptions{HasText: resultHeader}).First()
	return b.AwaitVisible(ctx, config.StatusTransition, "target result", header, false)
}

// FormatCodes puts each whitespace-separated system code on its own line.
func FormatCodes(codes string) string {
	return strings.Join(strings.Fields(codes), "\n")
}
