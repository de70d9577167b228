package doctor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opdflow/internal/config"
	"opdflow/internal/errs"
	"opdflow/internal/pages/pagetest"
)

const (
	title   = "自動テストタイトル5_20250401_ABC"
	company = "自動テスト株式会社"
)

var doctor = config.Doctor{LoginID: "mrqa_auto041", Password: "secret"}

// logins records submitted credentials.
type logins struct {
	mu  sync.Mutex
	ids []string
}

func (l *logins) record(r *http.Request, idField, pwField string) {
	_ = r.ParseForm()
	l.mu.Lock()
	l.ids = append(l.ids, r.PostForm.Get(idField)+"/"+r.PostForm.Get(pwField))
	l.mu.Unlock()
}

func (l *logins) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ids...)
}

func TestSPPage_LoginListAndDetail(t *testing.T) {
	page := pagetest.Page(t)
	var (
		seen     logins
		listHits atomic.Int32
	)
	srv := pagetest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			pagetest.HTML(w, "M3", `<form method="post" action="/login">
<input placeholder="ログインID" name="id"><input type="password" placeholder="パスワード" name="pw">
<button type="submit">ログイン</button></form>`)
		case "/login":
			seen.record(r, "id", "pw")
			pagetest.HTML(w, "M3", "ok")
		case "/sp/onepoint/top.htm":
			// Targeting reaches the list on the third load.
			if listHits.Add(1) < 3 {
				pagetest.HTML(w, "OPD", `<span>お知らせはありません</span>`)
				return
			}
			pagetest.HTML(w, "OPD", fmt.Sprintf(`<span>%s</span><p>%s</p>`, title, company))
		case "/sp/onepoint/4711/view.htm":
			pagetest.HTML(w, "OPD", fmt.Sprintf(`<h1>%s</h1><p>%s</p>`, title, company))
		default:
			http.NotFound(w, r)
		}
	}))

	p := NewSPPage(pagetest.Base(page), config.Targets{SP: srv.URL, MRKun: srv.URL})
	ctx := context.Background()

	require.NoError(t, p.Login(ctx, doctor))
	require.NoError(t, page.WaitForURL("**/login"))
	assert.Equal(t, []string{"mrqa_auto041/secret"}, seen.all())

	require.NoError(t, p.OpenList(ctx))
	require.NoError(t, p.AwaitListed(ctx, title))
	assert.Equal(t, int32(3), listHits.Load())
	require.NoError(t, p.ExpectListed(ctx, title, company))

	visible, err := p.TitleVisible(ctx, title)
	require.NoError(t, err)
	assert.True(t, visible)

	require.NoError(t, p.OpenDetail(ctx, "4711"))
	require.NoError(t, p.ExpectDetail(ctx, title, company))

	err = p.ExpectDetail(ctx, title, "別の会社")
	require.Error(t, err)
	assert.Equal(t, errs.PolicyExhausted, errs.KindOf(err), "a company that never renders exhausts page_ready")
}

func TestSPPage_NeverListed(t *testing.T) {
	page := pagetest.Page(t)
	var hits atomic.Int32
	srv := pagetest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		pagetest.HTML(w, "OPD", `<span>お知らせはありません</span>`)
	}))

	p := NewSPPage(pagetest.Base(page), config.Targets{MRKun: srv.URL})
	require.NoError(t, p.OpenList(context.Background()))
	err := p.AwaitListed(context.Background(), title)
	require.Error(t, err)
	assert.Equal(t, errs.PolicyExhausted, errs.KindOf(err))
	assert.Contains(t, err.Error(), "6 attempt(s)")
	assert.Equal(t, int32(6), hits.Load(), "one load plus a reload between each attempt")
}

// caSite serves the MR-kun top page with a CA container that shows the
// message after a number of loads.
func caSite(t *testing.T, showAfter int32, href string) (*http.ServeMux, *logins) {
	t.Helper()
	var (
		seen logins
		hits atomic.Int32
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/mt/onepoint/top.htm", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err != nil {
			pagetest.HTML(w, "ログイン", `<form method="post" action="/ca-login">
<input placeholder="ログインIDを入力してください" name="id"><input type="password" placeholder="パスワードを入力してください" name="pw">
<button type="submit">ログイン</button></form>`)
			return
		}
		if hits.Add(1) < showAfter {
			pagetest.HTML(w, "MR君", `<div class="m3_ca-container">おすすめ情報</div>`)
			return
		}
		pagetest.HTML(w, "MR君", fmt.Sprintf(`<div class="m3_ca-container">
<div>先生、こちらの情報はお早めにご確認ください</div>
<a href="%s">%s</a><span>（開封 50pt）</span></div>
<a href="/mt/onepoint/answer?ca=90213">回答する</a>`, href, title))
	})
	mux.HandleFunc("/ca-login", func(w http.ResponseWriter, r *http.Request) {
		seen.record(r, "id", "pw")
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "1", Path: "/"})
		http.Redirect(w, r, "/mt/onepoint/top.htm?tc=sub-m3com", http.StatusFound)
	})
	mux.HandleFunc("/mt/onepoint/4711/view.htm", func(w http.ResponseWriter, r *http.Request) {
		pagetest.HTML(w, "OPD", fmt.Sprintf(`<h1>%s</h1>`, title))
	})
	return mux, &seen
}

func TestCAPage_OpenPromotion(t *testing.T) {
	page := pagetest.Page(t)
	mux, seen := caSite(t, 3, "/mt/onepoint/4711/view.htm?ca=90113")
	srv := pagetest.Serve(t, mux)

	p := NewCAPage(pagetest.Base(page), srv.URL)
	ctx := context.Background()
	require.NoError(t, p.Login(ctx, doctor))
	require.NoError(t, page.WaitForURL("**/mt/onepoint/top.htm*"))
	assert.Equal(t, []string{"mrqa_auto041/secret"}, seen.all())

	require.NoError(t, p.AwaitCA(ctx, title))

	href, err := p.ExpectOpenPromotion(ctx, title)
	require.NoError(t, err)
	assert.Contains(t, href, OpenPromotionCA)

	n, err := p.AnswerPromotionLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, p.ClickCA(title))
	require.NoError(t, page.WaitForURL("**/mt/onepoint/4711/view.htm*"))

	require.NoError(t, p.OpenTop(ctx))
	require.NoError(t, p.AwaitCA(ctx, title))
}

func TestCAPage_WrongPlacement(t *testing.T) {
	page := pagetest.Page(t)
	mux, _ := caSite(t, 1, "/mt/onepoint/4711/view.htm?ca=99999")
	srv := pagetest.Serve(t, mux)

	p := NewCAPage(pagetest.Base(page), srv.URL)
	ctx := context.Background()
	require.NoError(t, p.Login(ctx, doctor))
	require.NoError(t, page.WaitForURL("**/mt/onepoint/top.htm*"))
	require.NoError(t, p.AwaitCA(ctx, title))

	_, err := p.ExpectOpenPromotion(ctx, title)
	require.Error(t, err)
	assert.Equal(t, errs.Assertion, errs.KindOf(err))
}

func TestCAPage_NeverDisplayedIsBestEffort(t *testing.T) {
	page := pagetest.Page(t)
	mux, _ := caSite(t, 1000, "")
	srv := pagetest.Serve(t, mux)

	b := pagetest.Base(page)
	p := NewCAPage(b, srv.URL)
	ctx := context.Background()
	require.NoError(t, p.Login(ctx, doctor))
	require.NoError(t, page.WaitForURL("**/mt/onepoint/top.htm*"))

	err := p.AwaitCA(ctx, title)
	require.Error(t, err)
	assert.Equal(t, errs.PolicyExhausted, errs.KindOf(err))
	assert.True(t, b.Waiter.BestEffort(config.CADisplay))
	assert.False(t, errs.Fatal(err, b.Waiter.BestEffort(config.CADisplay)))
}

func TestPCPage_ListDetailAndPoints(t *testing.T) {
	page := pagetest.Page(t)
	var (
		seen       logins
		listHits   atomic.Int32
		detailHits atomic.Int32
	)
	srv := pagetest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			pagetest.HTML(w, "m3.com", `<form method="post" action="/login">
<input id="loginId" name="id"><input id="password" type="password" name="pw">
<button type="submit">ログイン</button></form>`)
		case "/login":
			seen.record(r, "id", "pw")
			pagetest.HTML(w, "m3.com", "ok")
		case "/mt/onepoint/top.htm":
			if listHits.Add(1) < 2 {
				pagetest.HTML(w, "MR君", `<div id="opd30_list_div"></div><a>`+title+`</a>`)
				return
			}
			pagetest.HTML(w, "MR君", `<div id="opd30_list_div"><a href="/mt/onepoint/4711/view.htm">`+title+`</a></div>`)
		case "/mt/onepoint/4711/view.htm":
			// Points accrue by 25 per load.
			points := 25 * (detailHits.Add(1) - 1)
			pagetest.HTML(w, "OPD", fmt.Sprintf(`<h1 class="m3_plain">ワンポイント医療情報</h1>
<dl><dt>%s</dt><dd>%s</dd></dl>
<a href="https://point.example/action/tutorial">%s</a>
<iframe id="iframeMessage" srcdoc="<a href='https://a.example'>a</a><a href='https://b.example'>b</a>"></iframe>`,
				title, company, formatPoints(points)))
		default:
			http.NotFound(w, r)
		}
	}))

	p := NewPCPage(pagetest.Base(page), config.Targets{PC: srv.URL, MRKun: srv.URL})
	ctx := context.Background()

	require.NoError(t, p.Login(ctx, doctor))
	require.NoError(t, page.WaitForURL("**/login"))
	assert.Equal(t, []string{"mrqa_auto041/secret"}, seen.all())

	require.NoError(t, p.OpenList(ctx))
	require.NoError(t, p.AwaitListed(ctx, title))

	view := NewOpdViewPage(pagetest.Base(page), srv.URL)
	require.NoError(t, view.Open(ctx, "4711"))
	require.NoError(t, view.ExpectDetail(ctx, "ワンポイント医療情報", title, company))

	points, err := p.AwaitActionPoints(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 50, points)

	links, err := view.LinkCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, links)
}

func TestPCPage_PointsWithThousandsSeparator(t *testing.T) {
	page := pagetest.Page(t)
	srv := pagetest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagetest.HTML(w, "OPD", `<a href="https://point.example/action/tutorial">1,250</a>`)
	}))

	p := NewPCPage(pagetest.Base(page), config.Targets{MRKun: srv.URL})
	require.NoError(t, NewOpdViewPage(p.Base, srv.URL).Open(context.Background(), "4711"))
	points, err := p.AwaitActionPoints(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, 1250, points)
}

func TestOpdViewPage_DetailDateAndLinks(t *testing.T) {
	page := pagetest.Page(t)
	var loads atomic.Int32
	srv := pagetest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mt/onepoint/4711/view.htm" || r.URL.Query().Get("mkep") != "list" {
			http.NotFound(w, r)
			return
		}
		loads.Add(1)
		pagetest.HTML(w, "OPD", `<h1 class="m3_plain">ワンポイント医療情報</h1>
<dl><dt>`+title+`</dt><dd><span>2025/04/01</span> 配信</dd><dd>`+company+`</dd></dl>
<iframe id="iframeMessage" srcdoc="<p>本文</p><a href='https://a.example'>a</a>"></iframe>`)
	}))

	p := NewOpdViewPage(pagetest.Base(page), srv.URL)
	ctx := context.Background()

	require.NoError(t, p.Open(ctx, "4711"))
	require.NoError(t, p.ExpectDetail(ctx, "ワンポイント医療情報", title, company))
	require.NoError(t, p.ExpectDate(ctx, "2025/04/01"))
	links, err := p.LinkCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, links)
	assert.EqualValues(t, 1, loads.Load(), "detail checks never reload")

	err = p.ExpectDetail(ctx, "ワンポイント医療情報", "自動テストタイトル別件", company)
	require.Error(t, err)
	assert.Equal(t, errs.PolicyExhausted, errs.KindOf(err))
}

func rhsList(items string) string {
	return `<div id="mrTabContent"><div><ul>
<li><a eop-title="別のメッセージ" href="#">別のメッセージ</a><div class="atlas-rhs__article-list__text">
<span class="atlas-rhs__article-list__source">他社</span><span class="m3-text--action-point">5</span></div></li>` + items + `
</ul></div></div>`
}

const rhsItem = `<li><a eop-title="` + title + `" href="/mt/onepoint/4711/view.htm"><img src="/mt-img/onepoint/4711/thumbnail.jpeg">` + title + `</a>
<div class="atlas-rhs__article-list__text"><span class="atlas-rhs__article-list__source">` + company + `</span>
<span class="m3-text--action-point">50</span></div></li>`

func TestTopPage_RHSAndTodo(t *testing.T) {
	page := pagetest.Page(t)
	var rhsHits, todoHits atomic.Int32
	srv := pagetest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/mt/onepoint/top.htm":
			if rhsHits.Add(1) < 2 {
				pagetest.HTML(w, "MR君", rhsList(""))
				return
			}
			pagetest.HTML(w, "MR君", rhsList(rhsItem))
		case "/todo":
			other := `<div><div class="lp-todo-items__description"><p>「別件」を開封する</p></div></div>`
			if todoHits.Add(1) < 3 {
				pagetest.HTML(w, "TODO", other)
				return
			}
			pagetest.HTML(w, "TODO", other+`<div><div class="lp-todo-items__description"><p>「`+title+`」を開封する</p></div></div>`)
		default:
			http.NotFound(w, r)
		}
	}))

	p := NewTopPage(pagetest.Base(page), config.Targets{MRKun: srv.URL, Todo: srv.URL + "/todo?from=active_start"})
	ctx := context.Background()

	require.NoError(t, p.OpenRHS(ctx))
	points, err := p.ExpectRHS(ctx, RHSEntry{ID: "4711", Title: title, Company: company, MinActionPoints: 50})
	require.NoError(t, err)
	assert.Equal(t, 50, points)
	assert.GreaterOrEqual(t, rhsHits.Load(), int32(2), "the column is reloaded until the message propagates")

	require.NoError(t, p.OpenTodo(ctx))
	require.NoError(t, p.AwaitTodo(ctx, title))
	assert.GreaterOrEqual(t, todoHits.Load(), int32(3))
}

func TestTopPage_RHSWrongCompany(t *testing.T) {
	page := pagetest.Page(t)
	srv := pagetest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagetest.HTML(w, "MR君", rhsList(rhsItem))
	}))

	p := NewTopPage(pagetest.Base(page), config.Targets{MRKun: srv.URL})
	require.NoError(t, p.OpenRHS(context.Background()))
	_, err := p.ExpectRHS(context.Background(), RHSEntry{ID: "4711", Title: title, Company: "別の会社", MinActionPoints: 50})
	require.Error(t, err)
	assert.Equal(t, errs.PolicyExhausted, errs.KindOf(err))
	assert.Contains(t, err.Error(), company, "the last observed company is reported")
}

func formatPoints(n int32) string {
	if n == 0 {
		return "-"
	}
	return fmt.Sprint(n)
}
