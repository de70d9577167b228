package mrkun

import (
	"context"
	"net/url"

	"github.com/playwright-community/playwright-go"

	"opdflow/internal/config"
	"opdflow/internal/errs"
	"opdflow/internal/pages"
	"opdflow/internal/poll"
)

const (
	registered = "登録完了"
	completed  = "正常終了"
)

// QAToolPage wraps the QA helpers of the MR-kun backend.
type QAToolPage struct {
	pages.Base
	qaURL string
}

func NewQAToolPage(b pages.Base, qaURL string) *QAToolPage {
	return &QAToolPage{Base: b, qaURL: qaURL}
}

// RegisterAlgorithmType registers the OPD algorithm type of a doctor so
// CA placements are chosen for them.
func (p *QAToolPage) RegisterAlgorithmType(ctx context.Context, systemCode string) error {
	u := pages.Join(p.qaURL, "/admin/qa/registerOpdAlgorithmType.jsp?systemCd2="+url.QueryEscape(systemCode))
	if err := p.Goto(ctx, u); err != nil {
		return err
	}
	_, err := p.AwaitText(ctx, config.AlgorithmRegistration, "algorithm type registration", p.Page.Locator("body"), poll.Contains(registered), false)
	return err
}

// UploadSplitDeliveryFile puts the split delivery file of a doctor where
// the auto delivery job picks it up.
func (p *QAToolPage) UploadSplitDeliveryFile(ctx context.Context, systemCode string) error {
	u := pages.Join(p.qaURL, "/admin/qa/uploadOpdKowakeFile.jsp?systemCd1="+url.QueryEscape(systemCode))
	if err := p.Goto(ctx, u); err != nil {
		return err
	}
	_, err := p.AwaitText(ctx, config.PageReady, "split delivery upload", p.Page.Locator("body"), poll.Contains(completed), false)
	return err
}

// RollbackRegisteredMR undoes the MR registration of a doctor account.
func (p *QAToolPage) RollbackRegisteredMR(ctx context.Context, loginID, mrID string) error {
	if loginID == "" || mrID == "" {
		return errs.New(errs.Infrastructure, "rollback registered mr", "login id and mr id are required")
	}
	if err := p.Goto(ctx, pages.Join(p.qaURL, "/admin/qa/")); err != nil {
		return err
	}
	loginField := p.Page.Locator("#rollbackRegisteredMr_loginId")
	if err := p.AwaitVisible(ctx, config.PageReady, "rollback form", loginField, true); err != nil {
		return err
	}
	return pages.Steps(
		pages.Fill("rollback login id", loginField, loginID),
		pages.Fill("rollback mr id", p.Page.Locator("#rollbackRegisteredMr_mrId"), mrID),
		pages.Click("rollback", p.Page.Locator("button").Filter(playwright.LocatorFilterOptions{HasText: "実行"}).First()),
	)
}
