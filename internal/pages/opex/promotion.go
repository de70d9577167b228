package opex

import (
	"context"
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"opdflow/internal/config"
	"opdflow/internal/pages"
	"opdflow/internal/poll"
	"opdflow/internal/probe"
)

const (
	previewPending = "プレビュー画像最新更新日時 : 未生成"
	deliveryField  = `input[placeholder="既読促進メールの配信日付"]`
)

var awaitingConfirmation = regexp.MustCompile(`^(配信登録待ち|同日配信のターゲットメールのリストID設定の確認待ち)$`)

// previewReady is true once the page no longer reports a missing preview.
const previewReady = `() => !document.body.innerText.includes(` + "`" + previewPending + "`" + `)`

// PromotionMailPage schedules the read-promotion mail of a message.
type PromotionMailPage struct {
	pages.Base
	opexURL string
}

func NewPromotionMailPage(b pages.Base, opexURL string) *PromotionMailPage {
	return &PromotionMailPage{Base: b, opexURL: opexURL}
}

// Open navigates to the promotion mail settings of id.
func (p *PromotionMailPage) Open(ctx context.Context, id string) error {
	if err := p.Goto(ctx, pages.Join(p.opexURL, "/internal/mrf_management/promotion_mail/"+id)); err != nil {
		return err
	}
	return p.AwaitVisible(ctx, config.PageReady, "preview button", pages.Button(p.Page, "プレビュー画像生成"), true)
}

// GeneratePreview requests the preview image and waits until the
// server reports it generated.
func (p *PromotionMailPage) GeneratePreview(ctx context.Context) error {
	if err := pages.Do("generate preview", pages.Button(p.Page, "プレビュー画像生成").Click()); err != nil {
		return err
	}
	_, err := probe.Await(ctx, p.Waiter, config.PreviewImage,
		probe.Truthy("preview image", p.Page, previewReady), poll.IsTrue, nil)
	return err
}

// SetDeliveryDate waits until the delivery date field unlocks and sets it.
func (p *PromotionMailPage) SetDeliveryDate(ctx context.Context, at time.Time) error {
	if err := p.AwaitEnabled(ctx, config.FieldEnabled, "delivery date field", p.Page.Locator(deliveryField).First()); err != nil {
		return err
	}
	date := pages.Textbox(p.Page, "日付を選択").First()
	clock := pages.Textbox(p.Page, "時間を選択").First()
	ok := pages.Button(p.Page, "OK").First()
	return pages.Steps(
		pages.Click("delivery date", pages.Textbox(p.Page, "既読促進メールの配信日付")),
		pages.Click("date picker", date),
		pages.Fill("date picker", date, at.Format(time.DateOnly)),
		pages.Click("time picker", clock),
		pages.Fill("time picker", clock, at.Format(time.TimeOnly)),
		pages.Click("confirm date", ok),
		pages.Click("confirm date", ok),
	)
}

// RegisterDelivery registers the mail with a test recipient and no DCF
// and waits for the status to move on.
func (p *PromotionMailPage) RegisterDelivery(ctx context.Context, testMail string) error {
	err := pages.Steps(
		pages.Fill("test mail", p.Page.Locator(`input[type="text"]`).First(), testMail),
		pages.Click("dcf none", p.Page.Locator("span").Filter(playwright.LocatorFilterOptions{HasText: "無"}).First()),
		pages.Click("register delivery", pages.Button(p.Page, "設定した内容で配信登録/テストメール送信")),
	)
	if err != nil {
		return err
	}
	status := p.Page.Locator("span").Filter(playwright.LocatorFilterOptions{HasText: awaitingConfirmation}).First()
	return p.AwaitVisible(ctx, config.StatusTransition, "delivery status", status, false)
}

// ConfirmListID confirms the same-day target mail list ID.
func (p *PromotionMailPage) ConfirmListID() error {
	return pages.Steps(
		pages.Click("confirm list id", pages.Button(p.Page, "同日配信のターゲットメールのリストID設定の確認")),
		pages.Click("confirm list id ok", pages.Button(p.Page, "OK").First()),
	)
}

// Setup runs the whole promotion mail flow for id, delivering at at.
func (p *PromotionMailPage) Setup(ctx context.Context, id string, at time.Time, testMail string) error {
	err := pages.Steps(
		func() error { return p.Open(ctx, id) },
		func() error { return p.GeneratePreview(ctx) },
		func() error { return p.SetDeliveryDate(ctx, at) },
		func() error { return p.RegisterDelivery(ctx, testMail) },
		p.ConfirmListID,
	)
	if err == nil {
		p.Log().Info("promotion mail registered", zap.String("opd_id", id), zap.Time("deliver_at", at))
	}
	return err
}
