package opd

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"opdflow/internal/actor"
	"opdflow/internal/config"
	"opdflow/internal/core"
	"opdflow/internal/pages"
	"opdflow/internal/pages/doctor"
	"opdflow/internal/pages/mrkun"
	"opdflow/internal/pages/opex"
	"opdflow/internal/scenario"
	"opdflow/internal/template"
)

// Actor names. Every phase opens fresh sessions under these names.
const (
	actorOpex   = "opex"
	actorMRKun  = "mrkun"
	actorDoctor = "doctor"
)

// Output keys handed between phases.
const (
	KeyID          = "opd_id"
	KeyTitle       = "opd_title"
	KeySystemCode  = "system_code"
	KeyActionPoint = "action_points"
	KeyCAHref      = "ca_href"
)

// detailHeading heads every message detail on the PC portal.
const detailHeading = "ワンポイント医療情報"

// keys returns the id and title output keys of a message. Flows with
// several messages tell them apart by suffix.
func keys(suffix string) (id, title string) {
	if suffix == "" {
		return KeyID, KeyTitle
	}
	return KeyID + "_" + suffix, KeyTitle + "_" + suffix
}

func opexActor(s *config.Suite) actor.Spec {
	r := actor.Realms(s)[actor.RealmOpex]
	return actor.Spec{Name: actorOpex, Device: actor.DevicePC, StorageState: r.State, Proxy: r.Proxy}
}

func mrkunActor(s *config.Suite) actor.Spec {
	r := actor.Realms(s)[actor.RealmMRKun]
	return actor.Spec{Name: actorMRKun, Device: actor.DevicePC, StorageState: r.State, Proxy: r.Proxy}
}

func doctorActor(s *config.Suite, device string) actor.Spec {
	return actor.Spec{Name: actorDoctor, Device: device, Proxy: s.Browser.Proxy}
}

// base wraps the named session of the running phase for page objects.
func base(pc *scenario.PhaseContext, name string) (pages.Base, error) {
	s, err := pc.Session(name)
	if err != nil {
		return pages.Base{}, err
	}
	return pages.New(s, pc.Waiter(), pc.Suite, pc.Logger), nil
}

// message reads the id and title a create phase produced.
func message(pc *scenario.PhaseContext, suffix string) (id, title string, err error) {
	idKey, titleKey := keys(suffix)
	if id, err = pc.Input(idKey); err != nil {
		return "", "", err
	}
	if title, err = pc.Input(titleKey); err != nil {
		return "", "", err
	}
	return id, title, nil
}

// createPhase creates the message v on OPEX and outputs its id and title
// under suffix.
func createPhase(env Env, name, suffix string, v Variant) scenario.Phase {
	return scenario.Phase{
		Name:   name,
		Class:  config.EntityCreated,
		Actors: []actor.Spec{opexActor(env.Suite)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorOpex)
			if err != nil {
				return nil, err
			}
			p := opex.NewCreatePage(b, pc.Suite.Targets.Opex)
			if err := p.Open(ctx); err != nil {
				return nil, err
			}
			m := NewMessage(pc.Suite.Fixtures, v)
			id, err := p.Create(ctx, m)
			if err != nil {
				return nil, err
			}
			idKey, titleKey := keys(suffix)
			return core.Outputs{idKey: id, titleKey: m.Title}, nil
		},
	}
}

// targetPhase adds the scenario's doctor to the target list of every
// message named by suffixes.
func targetPhase(env Env, suffixes ...string) scenario.Phase {
	if len(suffixes) == 0 {
		suffixes = []string{""}
	}
	code := env.Doctor.SystemCode
	return scenario.Phase{
		Name:   "target",
		Class:  config.StatusTransition,
		Actors: []actor.Spec{mrkunActor(env.Suite)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorMRKun)
			if err != nil {
				return nil, err
			}
			p := mrkun.NewAdminPage(b, pc.Suite.Targets.MRKun)
			for _, suffix := range suffixes {
				id, _, err := message(pc, suffix)
				if err != nil {
					return nil, err
				}
				if err := p.SetupTarget(ctx, id, code); err != nil {
					return nil, err
				}
			}
			return core.Outputs{KeySystemCode: code}, nil
		},
	}
}

// registerCAPhase registers the OPD algorithm type for the doctor so CA
// placements are served. The algorithm_registration mode decides
// whether a failed registration stops the flow.
func registerCAPhase(env Env) scenario.Phase {
	code := env.Doctor.SystemCode
	return scenario.Phase{
		Name:   "register-ca",
		Class:  config.AlgorithmRegistration,
		Actors: []actor.Spec{mrkunActor(env.Suite)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorMRKun)
			if err != nil {
				return nil, err
			}
			return nil, mrkun.NewQAToolPage(b, pc.Suite.Targets.QATool).RegisterAlgorithmType(ctx, code)
		},
	}
}

func updatePhase(env Env, body string) scenario.Phase {
	return scenario.Phase{
		Name:   "update",
		Actors: []actor.Spec{opexActor(env.Suite)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorOpex)
			if err != nil {
				return nil, err
			}
			id, _, err := message(pc, "")
			if err != nil {
				return nil, err
			}
			return nil, opex.NewEditPage(b, pc.Suite.Targets.Opex).UpdateBody(ctx, id, body)
		},
	}
}

// stopPhase stops delivery of the message named by suffix so it leaves
// the doctor's inbox. It runs last under the cleanup class.
func stopPhase(env Env, suffix string) scenario.Phase {
	return scenario.Phase{
		Name:   "stop-delivery",
		Class:  config.Cleanup,
		Actors: []actor.Spec{opexActor(env.Suite)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorOpex)
			if err != nil {
				return nil, err
			}
			id, _, err := message(pc, suffix)
			if err != nil {
				return nil, err
			}
			return nil, opex.NewEditPage(b, pc.Suite.Targets.Opex).StopDelivery(ctx, id)
		},
	}
}

// verifySPPhase logs the doctor into the smartphone portal and waits
// for every message named by suffixes to reach the list. The first one
// is also opened.
func verifySPPhase(env Env, suffixes ...string) scenario.Phase {
	if len(suffixes) == 0 {
		suffixes = []string{""}
	}
	doc := env.Doctor
	return scenario.Phase{
		Name:   "verify-sp",
		Class:  config.TargetPropagation,
		Actors: []actor.Spec{doctorActor(env.Suite, actor.DeviceIPhone)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorDoctor)
			if err != nil {
				return nil, err
			}
			company := pc.Suite.Fixtures.CompanyName
			p := doctor.NewSPPage(b, pc.Suite.Targets)
			if err := p.Login(ctx, doc); err != nil {
				return nil, err
			}
			for _, suffix := range suffixes {
				_, title, err := message(pc, suffix)
				if err != nil {
					return nil, err
				}
				err = pages.Steps(
					func() error { return p.OpenList(ctx) },
					func() error { return p.AwaitListed(ctx, title) },
					func() error { return p.ExpectListed(ctx, title, company) },
				)
				if err != nil {
					return nil, err
				}
			}
			id, title, err := message(pc, suffixes[0])
			if err != nil {
				return nil, err
			}
			return nil, pages.Steps(
				func() error { return p.OpenDetail(ctx, id) },
				func() error { return p.ExpectDetail(ctx, title, company) },
			)
		},
	}
}

// caPhase checks the open promotion CA for the message and follows it.
// Whether a failed CA check stops the flow is up to the ca_display
// condition mode.
func caPhase(env Env) scenario.Phase {
	doc := env.Doctor
	return scenario.Phase{
		Name:   "ca-display",
		Class:  config.CADisplay,
		Actors: []actor.Spec{doctorActor(env.Suite, actor.DeviceIPhone)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorDoctor)
			if err != nil {
				return nil, err
			}
			_, title, err := message(pc, "")
			if err != nil {
				return nil, err
			}
			p := doctor.NewCAPage(b, pc.Suite.Targets.MRKun)
			if err := p.Login(ctx, doc); err != nil {
				return nil, err
			}
			if err := p.AwaitCA(ctx, title); err != nil {
				return nil, err
			}
			href, err := p.ExpectOpenPromotion(ctx, title)
			if err != nil {
				return nil, err
			}
			out := core.Outputs{KeyCAHref: href}
			if err := p.ClickCA(title); err != nil {
				return out, err
			}
			if err := p.OpenTop(ctx); err != nil {
				return out, err
			}
			n, err := p.AnswerPromotionLinks(ctx)
			if err != nil {
				return out, err
			}
			pc.Logger.Info("answer promotion placements", zap.Int("links", n))
			return out, nil
		},
	}
}

// verifyPCPhase finds the message on the PC portal, opens it and waits
// for the opening action to be granted on top of the points held before.
func verifyPCPhase(env Env, checkPoints bool) scenario.Phase {
	doc := env.Doctor
	return scenario.Phase{
		Name:   "verify-pc",
		Class:  config.TargetPropagation,
		Actors: []actor.Spec{doctorActor(env.Suite, actor.DevicePC)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorDoctor)
			if err != nil {
				return nil, err
			}
			id, title, err := message(pc, "")
			if err != nil {
				return nil, err
			}
			p := doctor.NewPCPage(b, pc.Suite.Targets)
			err = pages.Steps(
				func() error { return p.Login(ctx, doc) },
				func() error { return p.OpenList(ctx) },
				func() error { return p.AwaitListed(ctx, title) },
			)
			if err != nil {
				return nil, err
			}
			before := 0
			if checkPoints {
				if before, err = p.AwaitActionPoints(ctx, 0); err != nil {
					return nil, err
				}
			}
			view := doctor.NewOpdViewPage(b, pc.Suite.Targets.MRKun)
			err = pages.Steps(
				func() error { return view.Open(ctx, id) },
				func() error {
					return view.ExpectDetail(ctx, detailHeading, title, pc.Suite.Fixtures.CompanyName)
				},
			)
			if err != nil || !checkPoints {
				return nil, err
			}
			after, err := p.AwaitActionPoints(ctx, before+pc.Suite.Fixtures.OpeningAction)
			if err != nil {
				return nil, err
			}
			links, err := view.LinkCount(ctx, 0)
			if err != nil {
				return nil, err
			}
			pc.Logger.Info("action points granted",
				zap.Int("before", before), zap.Int("after", after), zap.Int("message_links", links))
			return core.Outputs{KeyActionPoint: strconv.Itoa(after)}, nil
		},
	}
}

// liftLimitPhase removes the opening limit of the message.
func liftLimitPhase(env Env) scenario.Phase {
	return scenario.Phase{
		Name:   "lift-limit",
		Actors: []actor.Spec{opexActor(env.Suite)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorOpex)
			if err != nil {
				return nil, err
			}
			id, _, err := message(pc, "")
			if err != nil {
				return nil, err
			}
			return nil, opex.NewEditPage(b, pc.Suite.Targets.Opex).UpdateOpeningLimit(ctx, id, 0)
		},
	}
}

// promotionPhase registers the open promotion mail for 09:00 tomorrow.
func promotionPhase(env Env) scenario.Phase {
	return scenario.Phase{
		Name:   "promotion-mail",
		Class:  config.PreviewImage,
		Actors: []actor.Spec{opexActor(env.Suite)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorOpex)
			if err != nil {
				return nil, err
			}
			id, _, err := message(pc, "")
			if err != nil {
				return nil, err
			}
			at := deliverAt(template.Now())
			p := opex.NewPromotionMailPage(b, pc.Suite.Targets.Opex)
			if err := p.Setup(ctx, id, at, pc.Suite.Fixtures.PromotionMailTo); err != nil {
				return nil, err
			}
			return core.Outputs{"deliver_at": at.Format(time.DateTime)}, nil
		},
	}
}

// deliverAt is 09:00 on the day after now.
func deliverAt(now time.Time) time.Time {
	day := template.DateOffset(now, 1)
	return time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, now.Location())
}

// copyPhase copies the message on OPEX and outputs the copy under
// suffix. The copy keeps the title.
func copyPhase(env Env, suffix string) scenario.Phase {
	return scenario.Phase{
		Name:   "copy",
		Class:  config.EntityCreated,
		Actors: []actor.Spec{opexActor(env.Suite)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorOpex)
			if err != nil {
				return nil, err
			}
			id, title, err := message(pc, "")
			if err != nil {
				return nil, err
			}
			copied, err := opex.NewCopyPage(b, pc.Suite.Targets.Opex).Copy(ctx, id)
			if err != nil {
				return nil, err
			}
			idKey, titleKey := keys(suffix)
			return core.Outputs{idKey: copied, titleKey: title}, nil
		},
	}
}

// pcListPhase waits for the message named by suffix to reach the PC
// portal list.
func pcListPhase(env Env, suffix string) scenario.Phase {
	doc := env.Doctor
	return scenario.Phase{
		Name:   "verify-pc-list",
		Class:  config.TargetPropagation,
		Actors: []actor.Spec{doctorActor(env.Suite, actor.DevicePC)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorDoctor)
			if err != nil {
				return nil, err
			}
			_, title, err := message(pc, suffix)
			if err != nil {
				return nil, err
			}
			p := doctor.NewPCPage(b, pc.Suite.Targets)
			return nil, pages.Steps(
				func() error { return p.Login(ctx, doc) },
				func() error { return p.OpenList(ctx) },
				func() error { return p.AwaitListed(ctx, title) },
			)
		},
	}
}

// rhsPhase finds the message in the right-hand side column of the PC
// portal and outputs the action points it advertises.
func rhsPhase(env Env) scenario.Phase {
	doc := env.Doctor
	return scenario.Phase{
		Name:   "verify-rhs",
		Class:  config.TargetPropagation,
		Actors: []actor.Spec{doctorActor(env.Suite, actor.DevicePC)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorDoctor)
			if err != nil {
				return nil, err
			}
			id, title, err := message(pc, "")
			if err != nil {
				return nil, err
			}
			if err := doctor.NewPCPage(b, pc.Suite.Targets).Login(ctx, doc); err != nil {
				return nil, err
			}
			top := doctor.NewTopPage(b, pc.Suite.Targets)
			if err := top.OpenRHS(ctx); err != nil {
				return nil, err
			}
			points, err := top.ExpectRHS(ctx, doctor.RHSEntry{
				ID:              id,
				Title:           title,
				Company:         pc.Suite.Fixtures.CompanyName,
				MinActionPoints: pc.Suite.Fixtures.OpeningAction,
			})
			if err != nil {
				return nil, err
			}
			return core.Outputs{KeyActionPoint: strconv.Itoa(points)}, nil
		},
	}
}

// todoPhase waits for the TODO list to ask the doctor to open the
// message.
func todoPhase(env Env) scenario.Phase {
	doc := env.Doctor
	return scenario.Phase{
		Name:   "verify-todo",
		Class:  config.TargetPropagation,
		Actors: []actor.Spec{doctorActor(env.Suite, actor.DevicePC)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorDoctor)
			if err != nil {
				return nil, err
			}
			_, title, err := message(pc, "")
			if err != nil {
				return nil, err
			}
			top := doctor.NewTopPage(b, pc.Suite.Targets)
			return nil, pages.Steps(
				func() error { return doctor.NewPCPage(b, pc.Suite.Targets).Login(ctx, doc) },
				func() error { return top.OpenTodo(ctx) },
				func() error { return top.AwaitTodo(ctx, title) },
			)
		},
	}
}
