package opd

import (
	"context"

	"opdflow/internal/actor"
	"opdflow/internal/config"
	"opdflow/internal/core"
	"opdflow/internal/pages/mrkun"
	"opdflow/internal/pages/opex"
	"opdflow/internal/scenario"
	"opdflow/internal/template"
)

// Output keys of the split delivery flow. keyDay carries the day auto
// delivery was enabled so the job imports that day's files even after
// midnight.
const (
	KeyJobStatus = "job_status"
	keyDay       = "opd_day"
	suffixSplit  = "split"
)

// FilePrefix names the split delivery files of day, like
// M3_OPD_ID74_20250401.
func FilePrefix(f config.AutoDeliveryFixtures, day string) string {
	return f.FilePrefix + day
}

// enableAutoDeliveryPhase switches the message to split delivery.
func enableAutoDeliveryPhase(env Env) scenario.Phase {
	return scenario.Phase{
		Name:   "enable-auto-delivery",
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
			if err := opex.NewEditPage(b, pc.Suite.Targets.Opex).EnableAutoDelivery(ctx, id); err != nil {
				return nil, err
			}
			return core.Outputs{keyDay: template.Now().Format(dayLayout)}, nil
		},
	}
}

// uploadSplitFilePhase has the QA tool place the split delivery file.
func uploadSplitFilePhase(env Env) scenario.Phase {
	return scenario.Phase{
		Name:   "upload-split-file",
		Actors: []actor.Spec{mrkunActor(env.Suite)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorMRKun)
			if err != nil {
				return nil, err
			}
			code := pc.Suite.Fixtures.AutoDelivery.SystemCode
			return nil, mrkun.NewQAToolPage(b, pc.Suite.Targets.QATool).UploadSplitDeliveryFile(ctx, code)
		},
	}
}

// runJobPhase runs the split delivery job on today's files and waits for
// the run to report OK.
func runJobPhase(env Env) scenario.Phase {
	return scenario.Phase{
		Name:   "run-job",
		Class:  config.StatusTransition,
		Actors: []actor.Spec{opexActor(env.Suite)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorOpex)
			if err != nil {
				return nil, err
			}
			day, err := pc.Input(keyDay)
			if err != nil {
				return nil, err
			}
			f := pc.Suite.Fixtures.AutoDelivery
			p := opex.NewJobPage(b, pc.Suite.Targets.Opex, f.JobPath)
			if err := p.Run(ctx, FilePrefix(f, day)); err != nil {
				return nil, err
			}
			status, err := p.AwaitStatus(ctx)
			if err != nil {
				return nil, err
			}
			return core.Outputs{KeyJobStatus: status}, nil
		},
	}
}

// splitCopyPhase waits for the job's copy of the message to be listed
// under the shared memo and outputs it under the split suffix.
func splitCopyPhase(env Env) scenario.Phase {
	return scenario.Phase{
		Name:   "verify-split-copy",
		Class:  config.EntityCreated,
		Actors: []actor.Spec{mrkunActor(env.Suite)},
		Run: func(ctx context.Context, pc *scenario.PhaseContext) (core.Outputs, error) {
			b, err := base(pc, actorMRKun)
			if err != nil {
				return nil, err
			}
			id, title, err := message(pc, "")
			if err != nil {
				return nil, err
			}
			memo := pc.Suite.Fixtures.AutoDelivery.Memo
			copied, err := mrkun.NewAdminPage(b, pc.Suite.Targets.MRKun).AwaitNewestByMemo(ctx, memo, id)
			if err != nil {
				return nil, err
			}
			idKey, titleKey := keys(suffixSplit)
			return core.Outputs{idKey: copied, titleKey: title}, nil
		},
	}
}
