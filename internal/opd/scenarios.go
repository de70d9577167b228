package opd

import (
	"context"
	"net/http"
	"strconv"

	"github.com/playwright-community/playwright-go"

	"opdflow/internal/actor"
	"opdflow/internal/config"
	"opdflow/internal/core"
	"opdflow/internal/errs"
	api "opdflow/internal/http"
	"opdflow/internal/pages"
	"opdflow/internal/poll"
	"opdflow/internal/probe"
	"opdflow/internal/scenario"
)

// Personal OPD variants and their output suffixes.
var personalVariants = []struct {
	suffix  string
	variant Variant
}{
	{"insert_on", Variant{Flow: "58_ClientID差込ON", Body: "PCディテール本文コンテンツ（Personal OPD・差込ON）", InsertText: true}},
	{"insert_off", Variant{Flow: "58_ClientID差込OFF", Body: "PCディテール本文コンテンツ（Personal OPD・差込OFF）"}},
	{"no_client", Variant{Flow: "58_ClientIDなし", Body: "PCディテール本文コンテンツ（通常OPD）"}},
}

func createUpdate(env Env) scenario.Scenario {
	return scenario.Scenario{Phases: []scenario.Phase{
		createPhase(env, "create", "", Variant{Flow: "5", Body: "PCディテール本文コンテンツ"}),
		updatePhase(env, "PCディテール本文コンテンツ（更新後）"),
	}}
}

func targetDisplaySP(env Env) scenario.Scenario {
	return scenario.Scenario{Phases: []scenario.Phase{
		createPhase(env, "create", "", Variant{Flow: "5_SP", Body: "PCディテール本文コンテンツ（SP版テスト・初期）"}),
		targetPhase(env),
		updatePhase(env, "PCディテール本文コンテンツ（SP版テスト・更新後）"),
		verifySPPhase(env),
		stopPhase(env, ""),
	}}
}

func personalOPD(env Env) scenario.Scenario {
	var phases []scenario.Phase
	suffixes := make([]string, 0, len(personalVariants))
	for _, pv := range personalVariants {
		v := pv.variant
		if pv.suffix != "no_client" {
			v.PersonalClientID = env.Suite.Fixtures.PersonalOpdClientID
		}
		phases = append(phases, createPhase(env, "create-"+pv.suffix, pv.suffix, v))
		suffixes = append(suffixes, pv.suffix)
	}
	phases = append(phases, targetPhase(env, suffixes...), verifySPPhase(env, suffixes...))
	return scenario.Scenario{Phases: phases}
}

func caOpenPromotion(env Env) scenario.Scenario {
	return scenario.Scenario{Phases: []scenario.Phase{
		createPhase(env, "create", "", Variant{Flow: "10SP", Body: "CA表示確認用テスト本文（SP版）"}),
		targetPhase(env),
		registerCAPhase(env),
		caPhase(env),
	}}
}

func pcActionPoints(env Env) scenario.Scenario {
	return scenario.Scenario{Phases: []scenario.Phase{
		createPhase(env, "create", "", Variant{Flow: "5PC", Body: "PCディテール本文コンテンツ"}),
		targetPhase(env),
		registerCAPhase(env),
		verifyPCPhase(env, true),
	}}
}

func openingLimit(env Env) scenario.Scenario {
	return scenario.Scenario{Phases: []scenario.Phase{
		createPhase(env, "create", "", Variant{Flow: "46", Body: "PCディテール本文コンテンツ（開封上限）"}),
		targetPhase(env),
		liftLimitPhase(env),
		verifyPCPhase(env, false),
		stopPhase(env, ""),
	}}
}

func promotionMail(env Env) scenario.Scenario {
	return scenario.Scenario{Phases: []scenario.Phase{
		createPhase(env, "create", "", Variant{Flow: "76", Body: "PCディテール本文コンテンツ（開封促進メール）"}),
		targetPhase(env),
		promotionPhase(env),
	}}
}

// copyOPD copies a billed message and follows the copy to the PC portal.
func copyOPD(env Env) scenario.Scenario {
	return scenario.Scenario{Phases: []scenario.Phase{
		createPhase(env, "create", "", Variant{
			Flow:        "2",
			Body:        "PCディテール本文コンテンツ",
			CompanyCode: env.Suite.Fixtures.BillingCompanyCode,
		}),
		copyPhase(env, "copy"),
		targetPhase(env, "copy"),
		pcListPhase(env, "copy"),
		stopPhase(env, "copy"),
	}}
}

func topPageDisplay(env Env) scenario.Scenario {
	return scenario.Scenario{Phases: []scenario.Phase{
		createPhase(env, "create", "", Variant{Flow: "7", Body: "PCディテール本文コンテンツ（ID7テスト）"}),
		targetPhase(env),
		rhsPhase(env),
		todoPhase(env),
	}}
}

// autoDelivery enables split delivery on a message, runs the delivery
// job on an uploaded file and waits for the job's copy.
func autoDelivery(env Env) scenario.Scenario {
	f := env.Suite.Fixtures
	return scenario.Scenario{Phases: []scenario.Phase{
		createPhase(env, "create", "", Variant{
			Flow:        "74",
			Body:        "PCディテール本文コンテンツ",
			CompanyCode: f.BillingCompanyCode,
			Memo:        f.AutoDelivery.Memo,
		}),
		enableAutoDeliveryPhase(env),
		targetPhase(env),
		uploadSplitFilePhase(env),
		runJobPhase(env),
		splitCopyPhase(env),
		stopPhase(env, ""),
	}}
}

// propagationSmoke drives the fake doctor surface of the testserver:
// the message is seeded over the API, then the smartphone home page and
// the points API are polled until both have caught up.
func propagationSmoke(env Env) scenario.Scenario {
	return scenario.Scenario{Phases: []scenario.Phase{
		seedPhase(env),
		{
			Name:   "sp-home",
			Class:  config.TargetPropagation,
			Actors: []actor.Spec{doctorActor(env.Suite, actor.DeviceIPhone)},
			Run:    awaitHome,
		},
		pointsPhase(env),
	}}
}

// SeedRequests create a message and target it through the testserver
// API. The title and system code come from phase outputs.
func SeedRequests(pointAPI string) []api.Request {
	headers := map[string]string{"Content-Type": "application/json"}
	return []api.Request{
		{
			Name:    "create message",
			Method:  http.MethodPost,
			URL:     pages.Join(pointAPI, "/api/messages"),
			Headers: headers,
			Body:    `{"title": "${opd_title}", "opening_action": ${opening_action}}`,
			Extract: map[string]string{KeyID: "$.id"},
		},
		{
			Name:    "target doctor",
			Method:  http.MethodPost,
			URL:     pages.Join(pointAPI, "/api/messages/${opd_id}/targets"),
			Headers: headers,
			Body:    `{"system_codes": ["${system_code}"]}`,
		},
	}
}

func seedPhase(env Env) scenario.Phase {
	code := env.Doctor.SystemCode
	return scenario.Phase{
		Name:  "seed",
		Class: config.EntityCreated,
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			m := NewMessage(pc.Suite.Fixtures, Variant{Flow: "smoke"})
			vars := core.Outputs{KeyTitle: m.Title, KeySystemCode: code}
			vars.Set("opening_action", m.OpeningAction)
			wf := &api.Workflow{
				Requests: SeedRequests(pc.Suite.Targets.PointAPI),
				Client:   env.Client,
				Debug:    env.Debug,
			}
			out, err := wf.Run(ctx, vars)
			if err != nil {
				return nil, errs.Infra("seed message", err)
			}
			return core.Outputs{KeyID: out[KeyID], KeyTitle: m.Title, KeySystemCode: code}, nil
		},
	}
}

func awaitHome(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
	b, err := base(pc, actorDoctor)
	if err != nil {
		return nil, err
	}
	title, err := pc.Input(KeyTitle)
	if err != nil {
		return nil, err
	}
	code, err := pc.Input(KeySystemCode)
	if err != nil {
		return nil, err
	}
	if err := b.Goto(ctx, pages.Join(pc.Suite.Targets.SP, "/sp/home?system_code="+code)); err != nil {
		return nil, err
	}
	listed := b.Page.Locator("span.title").Filter(playwright.LocatorFilterOptions{HasText: title}).First()
	if err := b.AwaitVisible(ctx, config.TargetPropagation, "sp home title", listed, true); err != nil {
		return nil, err
	}
	return nil, b.ExpectText(ctx, "sp home title", listed, title)
}

func pointsPhase(env Env) scenario.Phase {
	return scenario.Phase{
		Name:  "points",
		Class: config.PointAccrual,
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			step := api.NewStep(api.Request{
				Name: "points",
				URL:  pages.Join(pc.Suite.Targets.PointAPI, "/api/points/${system_code}"),
			}, env.Client, env.Debug, nil)
			want := pc.Suite.Fixtures.OpeningAction
			granted, err := probe.Await(ctx, pc.Waiter(), config.PointAccrual,
				api.JSONInt("granted actions", step, pc.Inputs, "$.granted"), poll.AtLeast(want), nil)
			if err != nil {
				return nil, err
			}
			return core.Outputs{KeyActionPoint: strconv.Itoa(granted)}, nil
		},
	}
}
