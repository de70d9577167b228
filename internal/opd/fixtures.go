// Package opd builds OPD test messages and the business scenarios that
// create, target and verify them across the admin tools and the doctor
// portal.
package opd

import (
	"fmt"
	"strings"
	"time"

	"opdflow/internal/config"
	"opdflow/internal/pages/opex"
	"opdflow/internal/template"
)

const (
	titlePrefix = "自動テストタイトル"
	dayLayout   = "20060102"
	// endOfDay is the delivery window of a message starting at midnight.
	endOfDay = 23*time.Hour + 59*time.Minute + 59*time.Second
)

// Title returns a unique message title for flow on day, like
// 自動テストタイトル5_20250401_K3Q.
func Title(flow string, day time.Time) string {
	return fmt.Sprintf("%s%s_%s_%s", titlePrefix, flow, day.Format(dayLayout), strings.ToUpper(template.RandomAlnum(3)))
}

// RequestFormID returns the day followed by seven random digits.
func RequestFormID(day time.Time) string {
	return day.Format(dayLayout) + template.RandomDigits(7)
}

// Variant tweaks a message for one case of a flow.
type Variant struct {
	// Flow names the case in the title, like "58_ClientID差込ON".
	Flow string
	Body string
	// PersonalClientID makes the message a personal OPD.
	PersonalClientID string
	InsertText       bool
	// CompanyCode overrides the fixture company, like the billed one.
	CompanyCode string
	Memo        string
}

// NewMessage builds a message from the configured fixtures that is
// delivered from midnight today until the end of the day.
func NewMessage(f config.Fixtures, v Variant) opex.Message {
	now := template.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	company := f.CompanyCode
	if v.CompanyCode != "" {
		company = v.CompanyCode
	}
	return opex.Message{
		CompanyName:      f.CompanyName,
		ProductName:      f.ProductName,
		CompanyCode:      company,
		RequestFormID:    RequestFormID(start),
		Title:            Title(v.Flow, start),
		Body:             v.Body,
		OpeningPrice:     f.OpeningPrice,
		OpeningLimit:     f.OpeningLimit,
		OpeningAction:    f.OpeningAction,
		Start:            start,
		End:              start.Add(endOfDay),
		PersonalClientID: v.PersonalClientID,
		InsertText:       v.InsertText,
		Memo:             v.Memo,
	}
}
