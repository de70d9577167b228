package opex

import (
	"context"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"opdflow/internal/config"
	"opdflow/internal/pages"
	"opdflow/internal/poll"
)

// forceClick enables a button the form keeps disabled until blur
// validation settles, then clicks it.
const forceClick = `b => { b.disabled = false; b.click(); }`

// JobPage starts a batch job on OPEX by hand and follows its runs.
type JobPage struct {
	pages.Base
	url string
}

// NewJobPage returns the page of the job at path under opexURL.
func NewJobPage(b pages.Base, opexURL, path string) *JobPage {
	return &JobPage{Base: b, url: pages.Join(opexURL, path)}
}

func (p *JobPage) press(name string, button playwright.Locator) func() error {
	return func() error {
		_, err := button.Evaluate(forceClick, nil)
		return pages.Do(name, err)
	}
}

// Run sets the prefix of the files the job imports and executes it.
func (p *JobPage) Run(ctx context.Context, prefix string) error {
	if err := p.Goto(ctx, p.url); err != nil {
		return err
	}
	field := p.Page.GetByText("取り込み対象となるファイルのプレフィックス").First().
		Locator("..").Locator(`input[type="text"]`).First()
	if err := p.AwaitVisible(ctx, config.PageReady, "file prefix", field, true); err != nil {
		return err
	}
	err := pages.Steps(
		pages.Fill("file prefix", field, prefix),
		func() error { return pages.Do("file prefix", field.Press("Tab")) },
		p.press("save prefix", p.Page.Locator("button").Filter(playwright.LocatorFilterOptions{HasText: "OK"}).First()),
	)
	if err != nil {
		return err
	}
	execute := p.Page.GetByText("Actions", playwright.PageGetByTextOptions{Exact: playwright.Bool(true)}).
		Locator("..").Locator("..").Locator("button").First()
	if err := p.AwaitVisible(ctx, config.PageReady, "job actions", execute, false); err != nil {
		return err
	}
	err = pages.Steps(
		pages.Click("execute job", execute),
		p.press("confirm job", p.Page.Locator("button.el-button--primary").Filter(playwright.LocatorFilterOptions{HasText: "OK"}).Last()),
	)
	if err == nil {
		p.Log().Info("job started", zap.String("prefix", prefix))
	}
	return err
}

// AwaitStatus reloads the run history until the latest run reports OK
// and returns its status text.
func (p *JobPage) AwaitStatus(ctx context.Context) (string, error) {
	status := p.Page.Locator("table tbody tr").First().Locator("td").Nth(5)
	return p.AwaitText(ctx, config.StatusTransition, "job status", status, poll.Contains("OK"), true)
}
