// Package doctor drives the doctor-facing portal: the smartphone site,
// its CA placements and the PC site.
package doctor

import (
	"context"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"opdflow/internal/config"
	"opdflow/internal/pages"
)

func hasText(page playwright.Page, selector, text string) playwright.Locator {
	return page.Locator(selector).Filter(playwright.LocatorFilterOptions{HasText: text}).First()
}

// SPPage is the smartphone portal: login, message list and detail.
type SPPage struct {
	pages.Base
	targets config.Targets
}

func NewSPPage(b pages.Base, targets config.Targets) *SPPage {
	return &SPPage{Base: b, targets: targets}
}

// Login signs doctor in through the smartphone login form.
func (p *SPPage) Login(ctx context.Context, doctor config.Doctor) error {
	if err := p.Goto(ctx, pages.Join(p.targets.SP, "/")); err != nil {
		return err
	}
	loginID := p.Page.GetByPlaceholder("ログインID").Or(p.Page.Locator(`input[name*="login"]`)).First()
	password := p.Page.GetByPlaceholder("パスワード").Or(p.Page.Locator(`input[type="password"]`)).First()
	if err := p.AwaitVisible(ctx, config.PageReady, "sp login form", loginID, true); err != nil {
		return err
	}
	err := pages.Steps(
		pages.Fill("sp login id", loginID, doctor.LoginID),
		pages.Fill("sp password", password, doctor.Password),
		pages.Click("sp login", pages.Button(p.Page, "ログイン")),
	)
	if err == nil {
		p.Log().Info("doctor logged in", zap.String("site", "sp"), zap.String("login_id", doctor.LoginID))
	}
	return err
}

// OpenList opens the message list.
func (p *SPPage) OpenList(ctx context.Context) error {
	return p.Goto(ctx, pages.Join(p.targets.MRKun, "/sp/onepoint/top.htm"))
}

// AwaitListed waits until the message titled title has reached the
// doctor's list, reloading between attempts.
func (p *SPPage) AwaitListed(ctx context.Context, title string) error {
	return p.AwaitVisible(ctx, config.TargetPropagation, "sp list title", hasText(p.Page, "span", title), true)
}

// ExpectListed asserts the listed message shows title and company.
func (p *SPPage) ExpectListed(ctx context.Context, title, company string) error {
	return pages.Steps(
		func() error {
			return p.ExpectText(ctx, "sp list title", hasText(p.Page, "span", title), title)
		},
		func() error {
			return p.ExpectText(ctx, "sp list company", hasText(p.Page, "span, p", company), company)
		},
	)
}

// OpenDetail opens message id.
func (p *SPPage) OpenDetail(ctx context.Context, id string) error {
	return p.Goto(ctx, pages.Join(p.targets.MRKun, "/sp/onepoint/"+id+"/view.htm?pageContext=smp_opd1.0&mkep=new&wid="))
}

// ExpectDetail asserts the open detail shows title and company.
func (p *SPPage) ExpectDetail(ctx context.Context, title, company string) error {
	return pages.Steps(
		func() error {
			return p.ExpectText(ctx, "sp detail title", hasText(p.Page, "h1", title), title)
		},
		func() error {
			return p.ExpectText(ctx, "sp detail company", hasText(p.Page, "p", company), company)
		},
	)
}

// TitleVisible reads once whether a message titled title is on the page.
func (p *SPPage) TitleVisible(ctx context.Context, title string) (bool, error) {
	return p.Visible(ctx, "sp title", hasText(p.Page, "span, h1", title))
}
