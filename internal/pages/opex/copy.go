package opex

import (
	"context"

	"go.uber.org/zap"

	"opdflow/internal/config"
	"opdflow/internal/pages"
	"opdflow/internal/probe"
)

// CopyPage creates a new message from an existing one.
type CopyPage struct {
	pages.Base
	opexURL string
}

func NewCopyPage(b pages.Base, opexURL string) *CopyPage {
	return &CopyPage{Base: b, opexURL: opexURL}
}

// Open navigates to the copy form of id and waits for its button.
func (p *CopyPage) Open(ctx context.Context, id string) error {
	if err := p.Goto(ctx, pages.Join(p.opexURL, "/internal/mrf_management/opd/copy/"+id)); err != nil {
		return err
	}
	return p.AwaitVisible(ctx, config.PageReady, "copy button", pages.Button(p.Page, "コピー作成"), true)
}

// Copy copies message sourceID and returns the ID of the copy. The form
// shows the source ID until the server has assigned a new one.
func (p *CopyPage) Copy(ctx context.Context, sourceID string) (string, error) {
	if err := p.Open(ctx, sourceID); err != nil {
		return "", err
	}
	err := pages.Steps(
		pages.Click("copy", pages.Button(p.Page, "コピー作成")),
		pages.Click("confirm copy", pages.Button(p.Page, "OK").First()),
	)
	if err != nil {
		return "", err
	}
	id, err := probe.Await(ctx, p.Waiter, config.EntityCreated,
		probe.Value("copied message id", p.Page.Locator("input#id")),
		func(id string) bool { return assigned(id) && id != sourceID }, nil)
	if err != nil {
		return "", err
	}
	p.Log().Info("message copied", zap.String("source_id", sourceID), zap.String("opd_id", id))
	return id, nil
}
