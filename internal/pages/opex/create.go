// Package opex drives the OPEX admin console, where messages are
// created and edited.
package opex

import (
	"context"
	"strconv"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"opdflow/internal/config"
	"opdflow/internal/pages"
	"opdflow/internal/probe"
)

const (
	dateLayout = "2006/01/02"
	timeLayout = "15:04:05"
)

// Message is what the create form needs.
type Message struct {
	CompanyName   string
	ProductName   string
	CompanyCode   string
	RequestFormID string
	Title         string
	Body          string
	OpeningPrice  int
	OpeningLimit  int
	// OpeningAction is only filled when the form shows the field.
	OpeningAction int
	Start         time.Time
	End           time.Time

	// PersonalClientID makes the message a personal OPD for one client.
	PersonalClientID string
	// InsertText toggles the personal insert text on personal OPDs.
	InsertText bool
	// Memo is the management memo. Empty uses the title.
	Memo string
}

func (m Message) memo() string {
	if m.Memo != "" {
		return m.Memo
	}
	return m.Title
}

// CreatePage is the new-message form.
type CreatePage struct {
	pages.Base
	url string
}

func NewCreatePage(b pages.Base, opexURL string) *CreatePage {
	return &CreatePage{Base: b, url: pages.Join(opexURL, "/internal/mrf_management/opd/create")}
}

func (p *CreatePage) textbox(name string) playwright.Locator {
	return pages.Textbox(p.Page, name)
}

func (p *CreatePage) button(name string) playwright.Locator {
	return pages.Button(p.Page, name)
}

func (p *CreatePage) radio(id string) playwright.Locator {
	return p.Page.Locator(id + " > span.el-radio__label").First()
}

// spinbutton locates the numeric input inside the form item id.
func spinbutton(page playwright.Page, id string) playwright.Locator {
	return page.Locator(id).GetByRole(*playwright.AriaRoleSpinbutton)
}

// Open navigates to the form and waits until it has rendered.
func (p *CreatePage) Open(ctx context.Context) error {
	if err := p.Goto(ctx, p.url); err != nil {
		return err
	}
	return p.AwaitVisible(ctx, config.PageReady, "create form", p.Page.Locator(`label:has-text("ID")`).First(), true)
}

// Create fills the form, submits it and returns the new message ID.
func (p *CreatePage) Create(ctx context.Context, m Message) (string, error) {
	err := pages.Steps(
		func() error { return p.fillBasicInfo(ctx, m) },
		func() error { return p.setDateTime("*開始日時", m.Start) },
		func() error { return p.setDateTime("*終了日時", m.End) },
		p.selectRadios,
		pages.Click("delivery end date", p.button("配信終了日")),
		pages.Fill("memo", p.textbox("管理メモ"), m.memo()),
		func() error { return p.selectCompany(m.CompanyCode) },
		pages.Fill("pc body", p.textbox("PCディテール本文"), m.Body),
		pages.Click("copy body", p.button("PCディテール本文をSPディテール本文にコピーする")),
		func() error { return p.setPersonal(m) },
		pages.Click("create", p.button("新規作成")),
		pages.Click("confirm create", p.button("OK").First()),
	)
	if err != nil {
		return "", err
	}
	id, err := p.awaitID(ctx)
	if err != nil {
		return "", err
	}
	p.Log().Info("message created", zap.String("opd_id", id), zap.String("title", m.Title))
	return id, nil
}

func (p *CreatePage) fillBasicInfo(ctx context.Context, m Message) error {
	err := pages.Steps(
		pages.Fill("company name", p.textbox("*会社名"), m.CompanyName),
		pages.Fill("product name", p.textbox("*製品名"), m.ProductName),
		pages.Fill("request form id", p.textbox("依頼フォームID"), m.RequestFormID),
		pages.Fill("opening price", spinbutton(p.Page, "#openUnitPrice"), strconv.Itoa(m.OpeningPrice)),
		pages.Fill("title", p.textbox("*タイトル"), m.Title),
		pages.Fill("opening limit", spinbutton(p.Page, "#openUserCountLimit"), strconv.Itoa(m.OpeningLimit)),
	)
	if err != nil || m.OpeningAction == 0 {
		return err
	}
	action := p.textbox("開封アクション")
	visible, err := p.Visible(ctx, "opening action field", action)
	if err != nil || !visible {
		return err
	}
	return pages.Do("opening action", action.Fill(strconv.Itoa(m.OpeningAction)))
}

// setDateTime drives the element-ui date-time picker of field.
func (p *CreatePage) setDateTime(field string, t time.Time) error {
	date := p.textbox("日付を選択").First()
	clock := p.textbox("時間を選択").First()
	return pages.Steps(
		pages.Click(field, p.textbox(field)),
		pages.Click(field+" date", date),
		func() error { return pages.Do(field+" date", date.Clear()) },
		pages.Fill(field+" date", date, t.Format(dateLayout)),
		pages.Click(field+" time", clock),
		func() error { return pages.Do(field+" time", clock.Clear()) },
		pages.Fill(field+" time", clock, t.Format(timeLayout)),
		pages.Click(field+" ok", p.button("OK").First()),
	)
}

func (p *CreatePage) selectRadios() error {
	return pages.Steps(
		pages.Click("delivery status", p.radio("#isInDelivery_deliveryStatusDisplayed")),
		pages.Click("message type", p.radio("#messageType_messageTypeNormalOpd")),
		pages.Click("embedded movie", p.radio("#useEmbeddedMovie_doUseEmbeddedMoviePcSpOneTag")),
		pages.Click("qfb output", p.radio("#reportingQfbOutput_reportingQfbOutputFalse")),
	)
}

func (p *CreatePage) selectCompany(code string) error {
	field := p.Page.Locator(`label:has-text("合算チェック用会社")`).Locator("..").GetByPlaceholder("選択してください")
	option := p.Page.Locator(".el-select-dropdown__item").Filter(playwright.LocatorFilterOptions{HasText: code}).First()
	return pages.Steps(
		pages.Click("company select", field),
		pages.Click("company "+code, option),
	)
}

func (p *CreatePage) setPersonal(m Message) error {
	if m.PersonalClientID == "" {
		if m.InsertText {
			return pages.Do("insert text", p.radio("#personalInsertText_personalInsertTextOn").Click())
		}
		return nil
	}
	insert := "#personalInsertText_personalInsertTextOff"
	if m.InsertText {
		insert = "#personalInsertText_personalInsertTextOn"
	}
	return pages.Steps(
		pages.Fill("personal client id", p.textbox("パーソナルOPDクライアントID"), m.PersonalClientID),
		pages.Click("insert text", p.radio(insert)),
	)
}

// awaitID polls the ID field until the server has assigned one.
func (p *CreatePage) awaitID(ctx context.Context) (string, error) {
	field := p.Page.Locator(`input[name="id"], input#id`).First()
	return probe.Await(ctx, p.Waiter, config.EntityCreated,
		probe.Value("message id", field), assigned, nil)
}

// assigned accepts an ID the server has filled in.
func assigned(id string) bool {
	return id != "" && id != "0"
}
