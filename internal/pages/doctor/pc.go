package doctor

import (
	"context"

	"go.uber.org/zap"

	"opdflow/internal/config"
	"opdflow/internal/pages"
	"opdflow/internal/poll"
	"opdflow/internal/probe"
)

// PCPage is the PC portal: login, message list and action points.
// Message details are on OpdViewPage.
type PCPage struct {
	pages.Base
	targets config.Targets
}

func NewPCPage(b pages.Base, targets config.Targets) *PCPage {
	return &PCPage{Base: b, targets: targets}
}

// Login signs doctor in through the PC login form.
func (p *PCPage) Login(ctx context.Context, doctor config.Doctor) error {
	if err := p.Goto(ctx, pages.Join(p.targets.PC, "/")); err != nil {
		return err
	}
	loginID := p.Page.Locator("#loginId")
	if err := p.AwaitVisible(ctx, config.PageReady, "pc login form", loginID, true); err != nil {
		return err
	}
	err := pages.Steps(
		pages.Fill("pc login id", loginID, doctor.LoginID),
		pages.Fill("pc password", p.Page.Locator("#password"), doctor.Password),
		pages.Click("pc login", pages.Button(p.Page, "ログイン")),
	)
	if err == nil {
		p.Log().Info("doctor logged in", zap.String("site", "pc"), zap.String("login_id", doctor.LoginID))
	}
	return err
}

// OpenList opens the message list.
func (p *PCPage) OpenList(ctx context.Context) error {
	return p.Goto(ctx, pages.Join(p.targets.MRKun, "/mt/onepoint/top.htm?tc=sub-m3com"))
}

// AwaitListed waits until title appears in the main message list and
// asserts the link text, reloading between attempts.
func (p *PCPage) AwaitListed(ctx context.Context, title string) error {
	link := hasText(p.Page, "#opd30_list_div a", title)
	if err := p.AwaitVisible(ctx, config.TargetPropagation, "pc list title", link, true); err != nil {
		return err
	}
	return p.ExpectText(ctx, "pc list title", link, title)
}

// AwaitActionPoints waits until the doctor's action points reach want,
// reloading between attempts, and returns the last count.
func (p *PCPage) AwaitActionPoints(ctx context.Context, want int) (int, error) {
	points := p.Page.Locator(`a[href*="/action/tutorial"]`).First()
	return probe.Await(ctx, p.Waiter, config.PointAccrual, probe.Number("action points", points), poll.AtLeast(want), p.Reload())
}
