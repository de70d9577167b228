package doctor

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"opdflow/internal/config"
	"opdflow/internal/errs"
	"opdflow/internal/pages"
	"opdflow/internal/poll"
	"opdflow/internal/probe"
)

// CA placement IDs carried in link URLs.
const (
	OpenPromotionCA   = "90113"
	AnswerPromotionCA = "90213"
)

// CAPage is the MR-kun top page as a smartphone doctor sees it, with
// the CA container promoting unread messages.
type CAPage struct {
	pages.Base
	topURL string
}

func NewCAPage(b pages.Base, mrkunURL string) *CAPage {
	return &CAPage{Base: b, topURL: pages.Join(mrkunURL, "/mt/onepoint/top.htm?tc=sub-m3com")}
}

// Login signs doctor in through the form MR-kun shows logged-out visitors.
func (p *CAPage) Login(ctx context.Context, doctor config.Doctor) error {
	if err := p.Goto(ctx, p.topURL); err != nil {
		return err
	}
	loginID := p.Page.GetByPlaceholder("ログインIDを入力してください")
	if err := p.AwaitVisible(ctx, config.PageReady, "ca login form", loginID, true); err != nil {
		return err
	}
	return pages.Steps(
		pages.Fill("ca login id", loginID, doctor.LoginID),
		pages.Fill("ca password", p.Page.GetByPlaceholder("パスワードを入力してください"), doctor.Password),
		pages.Click("ca login", pages.Button(p.Page, "ログイン")),
	)
}

// OpenTop reopens the top page.
func (p *CAPage) OpenTop(ctx context.Context) error {
	return p.Goto(ctx, p.topURL)
}

// AwaitCA waits until the CA container mentions title, reloading
// between attempts.
func (p *CAPage) AwaitCA(ctx context.Context, title string) error {
	container := p.Page.Locator("div.m3_ca-container").First()
	_, err := p.AwaitText(ctx, config.CADisplay, "ca container", container, poll.Contains(title), true)
	return err
}

// ExpectOpenPromotion asserts the CA link for title is the open
// promotion placement and returns its href.
func (p *CAPage) ExpectOpenPromotion(ctx context.Context, title string) (string, error) {
	link := hasText(p.Page, "a", title)
	href, err := probe.Await(ctx, p.Waiter, config.PageReady, probe.Attribute("ca link", link, "href"), poll.Present[string](), nil)
	if err != nil {
		return "", err
	}
	if !strings.Contains(href, OpenPromotionCA) {
		return href, errs.Assertf("ca link", "href %q is not the open promotion placement %s", href, OpenPromotionCA)
	}
	if ok, _ := p.Visible(ctx, "ca action", p.Page.Locator(`span:has-text("（開封")`).First()); !ok {
		p.Log().Debug("ca shows no opening action", zap.String("title", title))
	}
	return href, nil
}

// AnswerPromotionLinks counts links to the answer promotion placement.
func (p *CAPage) AnswerPromotionLinks(ctx context.Context) (int, error) {
	return probe.Await(ctx, p.Waiter, config.PageReady,
		probe.Count("answer promotion links", p.Page.Locator(`a[href*="`+AnswerPromotionCA+`"]`)), poll.Present[int](), nil)
}

// ClickCA follows the CA link for title.
func (p *CAPage) ClickCA(title string) error {
	return pages.Do("click ca", hasText(p.Page, "a", title).Click())
}
