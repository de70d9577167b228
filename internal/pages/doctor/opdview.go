package doctor

import (
	"context"

	"github.com/playwright-community/playwright-go"

	"opdflow/internal/config"
	"opdflow/internal/pages"
	"opdflow/internal/poll"
	"opdflow/internal/probe"
)

// OpdViewPage is the message detail view on MR-kun, shared by the PC
// portal flows.
type OpdViewPage struct {
	pages.Base
	mrkunURL string
}

func NewOpdViewPage(b pages.Base, mrkunURL string) *OpdViewPage {
	return &OpdViewPage{Base: b, mrkunURL: mrkunURL}
}

// Open navigates to message id as reached from the unread list.
func (p *OpdViewPage) Open(ctx context.Context, id string) error {
	return p.Goto(ctx, pages.Join(p.mrkunURL, "/mt/onepoint/"+id+"/view.htm?pageContext=opd1.0&sort=unread&mkep=list"))
}

// ExpectDetail asserts the page heading, the message title term and
// the company.
func (p *OpdViewPage) ExpectDetail(ctx context.Context, heading, title, company string) error {
	term := p.Page.GetByRole(*playwright.AriaRoleTerm).Filter(playwright.LocatorFilterOptions{HasText: title}).First()
	return pages.Steps(
		func() error {
			return p.ExpectText(ctx, "opd view heading", hasText(p.Page, "h1.m3_plain", heading), heading)
		},
		func() error { return p.ExpectText(ctx, "opd view title", term, title) },
		func() error {
			return p.ExpectText(ctx, "opd view company", p.Page.GetByText(company).First(), company)
		},
	)
}

// ExpectDate asserts the view shows date, like 2025/04/01. The date may
// share its element with other text.
func (p *OpdViewPage) ExpectDate(ctx context.Context, date string) error {
	return p.AwaitVisible(ctx, config.PageReady, "opd view date", p.Page.GetByText(date).First(), false)
}

// LinkCount counts links inside the message body frame once it has at
// least want of them.
func (p *OpdViewPage) LinkCount(ctx context.Context, want int) (int, error) {
	links := p.Page.FrameLocator("#iframeMessage").Locator("a")
	return probe.Await(ctx, p.Waiter, config.PageReady, probe.Count("message links", links), poll.AtLeast(want), nil)
}
