package opd

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"opdflow/internal/config"
	api "opdflow/internal/http"
	"opdflow/internal/scenario"
)

// Env is what a scenario is built from.
type Env struct {
	Suite *config.Suite
	// Doctor is the account the scenario targets and logs in as.
	Doctor config.Doctor
	// Client and Debug serve API-backed phases. Nil uses defaults.
	Client *http.Client
	Debug  *api.DebugLogger
}

// Builder assembles a scenario for env.
type Builder func(env Env) scenario.Scenario

type entry struct {
	description string
	// targets must be configured for the scenario to run.
	targets []string
	build   Builder
}

// Registry maps scenario names to builders.
type Registry struct {
	entries map[string]entry
}

// NewRegistry returns a registry holding every built-in scenario.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]entry)}
	r.Register("create-update", "create a message and update its body",
		[]string{"opex"}, createUpdate)
	r.Register("target-display-sp", "create, target and update a message, then find it on the smartphone portal",
		[]string{"opex", "mrkun", "sp"}, targetDisplaySP)
	r.Register("personal-opd", "create three personal OPD variants and find each on the smartphone portal",
		[]string{"opex", "mrkun", "sp"}, personalOPD)
	r.Register("ca-open-promotion", "target a message and check its open promotion CA on the smartphone portal",
		[]string{"opex", "mrkun", "qa_tool"}, caOpenPromotion)
	r.Register("pc-action-points", "target a message, open it on the PC portal and check granted action points",
		[]string{"opex", "mrkun", "qa_tool", "pc"}, pcActionPoints)
	r.Register("opening-limit", "lift the opening limit of a targeted message and find it on the PC portal",
		[]string{"opex", "mrkun", "pc"}, openingLimit)
	r.Register("promotion-mail", "target a message and register its open promotion mail",
		[]string{"opex", "mrkun"}, promotionMail)
	r.Register("copy-opd", "copy a billed message, target the copy and find it on the PC portal",
		[]string{"opex", "mrkun", "pc"}, copyOPD)
	r.Register("top-page-display", "target a message and find it in the PC right-hand side column and TODO list",
		[]string{"opex", "mrkun", "pc", "todo"}, topPageDisplay)
	r.Register("auto-delivery", "enable split delivery, run the delivery job and wait for its copy of the message",
		[]string{"opex", "mrkun", "qa_tool"}, autoDelivery)
	r.Register("propagation-smoke", "seed a message over the API and poll the fake doctor surface",
		[]string{"sp", "point_api"}, propagationSmoke)
	return r
}

// Register adds a scenario. It panics if name is taken.
func (r *Registry) Register(name, description string, targets []string, build Builder) {
	if _, dup := r.entries[name]; dup {
		panic("opd: scenario registered twice: " + name)
	}
	r.entries[name] = entry{description: description, targets: targets, build: build}
}

// Names lists the registered scenarios in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe returns the one-line description of name.
func (r *Registry) Describe(name string) (string, bool) {
	e, ok := r.entries[name]
	return e.description, ok
}

// Runnable splits the registered scenarios into those whose targets are
// configured in s and the errors naming what the others miss.
func (r *Registry) Runnable(s *config.Suite) (names []string, skipped []error) {
	for _, name := range r.Names() {
		if err := s.RequireTargets(r.entries[name].targets...); err != nil {
			skipped = append(skipped, fmt.Errorf("scenario %s: %w", name, err))
			continue
		}
		names = append(names, name)
	}
	return names, skipped
}

// Build assembles the named scenario. It fails when the name is unknown
// or a target the scenario needs is not configured.
func (r *Registry) Build(name string, env Env) (scenario.Scenario, error) {
	e, ok := r.entries[name]
	if !ok {
		return scenario.Scenario{}, fmt.Errorf("unknown scenario %q (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	if env.Suite == nil {
		env.Suite = config.Default()
	}
	if err := env.Suite.RequireTargets(e.targets...); err != nil {
		return scenario.Scenario{}, fmt.Errorf("scenario %s: %w", name, err)
	}
	sc := e.build(env)
	sc.Name = name
	sc.Description = e.description
	return sc, nil
}
