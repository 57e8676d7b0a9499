package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kwv/geoconflate/config"
	"github.com/kwv/geoconflate/feature"
	"github.com/kwv/geoconflate/match"
	"github.com/kwv/geoconflate/matcher"
	"github.com/kwv/geoconflate/output"
	"github.com/kwv/geoconflate/result"
	"github.com/kwv/geoconflate/search"
	"github.com/kwv/geoconflate/validate"
)

// App runs the conflation pipeline described by its configuration
type App struct {
	Config *config.Config
	Out    io.Writer
}

// NewApp creates an App writing reports to out
func NewApp(out io.Writer) *App {
	return &App{Out: out}
}

// Configure sets the configuration used by later runs
func (a *App) Configure(cfg *config.Config) {
	a.Config = cfg
}

// pipeline carries the intermediate state of one run
type pipeline struct {
	source, target *feature.Set
	matches        *match.MatchMap
	engine         *validate.Engine
	report         *validate.Report
	result         *result.Result
}

// loadSet reads a shapefile when path ends in .shp, GeoJSON otherwise
func loadSet(path, name string) (*feature.Set, error) {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		return feature.LoadShapefile(path, name)
	}
	return feature.LoadGeoJSON(path, name)
}

func (a *App) load() (*pipeline, error) {
	if err := a.Config.ValidateInput(); err != nil {
		return nil, err
	}
	source, err := loadSet(a.Config.Input.Source, "source")
	if err != nil {
		return nil, err
	}
	target, err := loadSet(a.Config.Input.Target, "target")
	if err != nil {
		return nil, err
	}
	zap.L().Info("loaded datasets",
		zap.String("source", a.Config.Input.Source),
		zap.Int("sourceObjects", source.Len()),
		zap.String("target", a.Config.Input.Target),
		zap.Int("targetObjects", target.Len()),
	)
	return &pipeline{source: source, target: target}, nil
}

// buildMatcher resolves the configured geometry and attribute matchers
func (a *App) buildMatcher(source, target *feature.Set) (*search.Matcher, error) {
	mc := a.Config.Matching
	rules := matcher.NewRuleSet()
	if mc.RuleFile != "" {
		if err := rules.LoadRuleFile(mc.RuleFile); err != nil {
			return nil, err
		}
	}
	srcRule, err := rules.Resolve(mc.SourceRule)
	if err != nil {
		return nil, err
	}
	tgtRule, err := rules.Resolve(mc.TargetRule)
	if err != nil {
		return nil, err
	}
	opts := matcher.Options{
		MaxDistance:     mc.MaxDistance,
		MinOverlap:      mc.MinOverlap,
		SourceAttribute: mc.SourceAttribute,
		TargetAttribute: mc.TargetAttribute,
		SourceRule:      srcRule,
		TargetRule:      tgtRule,
	}

	var gm matcher.GeometryMatcher
	if mc.Geometry != "" {
		if gm, err = matcher.LookupGeometry(mc.Geometry, opts); err != nil {
			return nil, err
		}
	}
	var am matcher.StringMatcher
	if mc.Attribute != "" {
		if am, err = matcher.LookupString(mc.Attribute, opts); err != nil {
			return nil, err
		}
	}
	m := search.New(source, target, gm, am)
	m.Workers = mc.Workers
	return m, nil
}

func (a *App) match(ctx context.Context, p *pipeline) error {
	m, err := a.buildMatcher(p.source, p.target)
	if err != nil {
		return err
	}
	start := time.Now()
	p.matches, err = m.MatchAll(ctx, a.Config.Matching.SingleSource, a.Config.Matching.SingleTarget)
	if err != nil {
		return err
	}
	zap.L().Info("matching complete",
		zap.Int("matches", p.matches.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// unvalidated reports every candidate as valid with its score as confidence
func unvalidated(mm *match.MatchMap) *validate.Report {
	r := &validate.Report{Converged: true}
	for _, m := range mm.All() {
		r.Outcomes = append(r.Outcomes, validate.Outcome{
			Match:  m,
			Status: validate.Valid,
			Record: validate.ConfidenceRecord{Object: m.Score, Confidence: m.Score},
		})
	}
	return r
}

func (a *App) validate(ctx context.Context, p *pipeline) error {
	if !a.Config.Validation.Enabled {
		p.report = unvalidated(p.matches)
		return nil
	}
	engine, err := validate.NewEngine(p.source, p.target, p.matches, a.Config.Validation.Options())
	if err != nil {
		return err
	}
	start := time.Now()
	report, err := engine.Run(ctx)
	if err != nil {
		return err
	}
	p.engine, p.report = engine, report
	for _, w := range report.Warnings {
		zap.L().Warn("validation", zap.String("warning", w))
	}
	zap.L().Info("validation complete",
		zap.Int("valid", report.Count(validate.Valid)),
		zap.Int("invalid", report.Count(validate.Invalid)),
		zap.Int("new", report.Count(validate.New)),
		zap.Int("backtracks", report.Backtracks),
		zap.Bool("converged", report.Converged),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Run matches, validates and assembles, then writes every configured output
func (a *App) Run(ctx context.Context) error {
	p, err := a.load()
	if err != nil {
		return err
	}
	if err := a.match(ctx, p); err != nil {
		return err
	}
	if err := a.validate(ctx, p); err != nil {
		return err
	}
	opts, err := a.Config.Output.ResultOptions(a.Config.Matching.Geometry)
	if err != nil {
		return err
	}
	p.result = result.Assemble(p.report, p.source, p.target, opts)

	if _, err := output.WriteGeoJSON(a.Config.Output.Dir, p.result); err != nil {
		return err
	}
	if err := a.render(p); err != nil {
		return err
	}

	summary := output.Summarize(p.report, p.result)
	runID := fmt.Sprintf("local-%d", time.Now().Unix())
	if a.Config.Store.Path != "" {
		run, err := a.save(ctx, p)
		if err != nil {
			return err
		}
		runID = run.ID
	}
	if err := a.publish(ctx, runID, summary, p.report); err != nil {
		return err
	}

	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Run     string         `json:"run"`
		Summary output.Summary `json:"summary"`
	}{runID, summary})
}

func (a *App) render(p *pipeline) error {
	oc := a.Config.Output
	if !oc.SVG && !oc.PNG && oc.ThumbnailSize == 0 {
		return nil
	}
	r := output.NewRenderer(p.result, p.target.Objects)
	write := func(name string, fn func(io.Writer) error) error {
		path := filepath.Join(oc.Dir, name)
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "create %s", path)
		}
		defer f.Close()
		if err := fn(f); err != nil {
			if eris.Is(err, output.ErrEmpty) {
				zap.L().Warn("nothing to render", zap.String("path", path))
				return nil
			}
			return err
		}
		zap.L().Info("rendered", zap.String("path", path))
		return nil
	}
	if oc.SVG {
		if err := write("result.svg", r.RenderToSVG); err != nil {
			return err
		}
	}
	if oc.PNG {
		if err := write("result.png", r.RenderToPNG); err != nil {
			return err
		}
	}
	if oc.ThumbnailSize > 0 {
		return write("thumbnail.png", func(w io.Writer) error { return r.Thumbnail(w, oc.ThumbnailSize) })
	}
	return nil
}

func (a *App) params() map[string]interface{} {
	mc, vc := a.Config.Matching, a.Config.Validation
	params := map[string]interface{}{
		"geometry":      mc.Geometry,
		"attribute":     mc.Attribute,
		"single_source": mc.SingleSource,
		"single_target": mc.SingleTarget,
		"validation":    vc.Enabled,
	}
	if vc.Enabled {
		params["threshold"] = vc.Threshold
		params["context_weight"] = vc.ContextWeight
		params["estimator"] = vc.Estimator
		params["similarity"] = vc.Similarity
	}
	if mc.MaxDistance != nil {
		params["max_distance"] = *mc.MaxDistance
	}
	if mc.MinOverlap != nil {
		params["min_overlap"] = *mc.MinOverlap
	}
	return params
}

func (a *App) save(ctx context.Context, p *pipeline) (*output.Run, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	run, err := store.SaveRun(ctx, a.Config.Input.Source, a.Config.Input.Target, a.params(), p.report, p.result)
	if err != nil {
		return nil, err
	}
	zap.L().Info("stored run", zap.String("run", run.ID), zap.String("store", a.Config.Store.Path))
	return run, nil
}

func (a *App) openStore(ctx context.Context) (*output.Store, error) {
	store, err := output.NewStore(a.Config.Store.Path, a.Config.Store.SRID)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func (a *App) publish(ctx context.Context, runID string, summary output.Summary, report *validate.Report) error {
	mc := a.Config.MQTT
	client, err := output.ConnectMQTT(output.MQTTOptions{
		Broker:   mc.Broker,
		ClientID: mc.ClientID,
		Username: mc.Username,
		Password: mc.Password,
		Timeout:  time.Duration(mc.TimeoutSecs) * time.Second,
	})
	if err != nil || client == nil {
		return err
	}
	defer client.Disconnect(250)

	pub := output.NewPublisher(client, mc.Prefix, mc.RatePerSec, mc.Burst)
	pub.SetQoS(byte(mc.QoS))
	pub.SetRetain(mc.Retain)
	return pub.PublishRun(ctx, runID, summary, report)
}

// matchLine is one candidate printed by Match
type matchLine struct {
	Source int     `json:"source"`
	Target int     `json:"target"`
	Score  float64 `json:"score"`
}

// Match runs candidate matching only and prints one JSON line per match
func (a *App) Match(ctx context.Context) error {
	p, err := a.load()
	if err != nil {
		return err
	}
	if err := a.match(ctx, p); err != nil {
		return err
	}
	enc := json.NewEncoder(a.Out)
	for _, m := range p.matches.All() {
		if err := enc.Encode(matchLine{m.SourceID(), m.TargetID(), m.Score}); err != nil {
			return eris.Wrap(err, "write match")
		}
	}
	return nil
}

type neighborView struct {
	Source        int     `json:"source"`
	Target        int     `json:"target"`
	Status        string  `json:"status"`
	SourceBearing float64 `json:"source_bearing"`
	TargetBearing float64 `json:"target_bearing"`
	Difference    float64 `json:"difference"`
	Agrees        bool    `json:"agrees"`
}

type explainView struct {
	Source     int                       `json:"source"`
	Target     int                       `json:"target"`
	Committed  bool                      `json:"committed"`
	Status     string                    `json:"status"`
	Valid      bool                      `json:"valid"`
	Estimator  string                    `json:"estimator"`
	Threshold  float64                   `json:"threshold"`
	Record     validate.ConfidenceRecord `json:"record"`
	Agreements int                       `json:"agreements"`
	Neighbors  []neighborView            `json:"neighbors"`
}

// Explain runs the pipeline up to validation and prints how the pair
// (sourceID, targetID) is judged against the final state
func (a *App) Explain(ctx context.Context, sourceID, targetID int) error {
	if !a.Config.Validation.Enabled {
		return eris.Wrap(config.ErrConfig, "explain needs validation enabled")
	}
	p, err := a.load()
	if err != nil {
		return err
	}
	if err := a.match(ctx, p); err != nil {
		return err
	}
	if err := a.validate(ctx, p); err != nil {
		return err
	}
	x, err := p.engine.Explain(sourceID, targetID)
	if err != nil {
		return err
	}
	view := explainView{
		Source:     x.SourceID,
		Target:     x.TargetID,
		Committed:  x.Committed,
		Status:     x.Status.String(),
		Valid:      x.Valid(),
		Estimator:  x.Estimator,
		Threshold:  x.Threshold,
		Record:     x.Record,
		Agreements: x.Agreements,
		Neighbors:  []neighborView{},
	}
	for _, n := range x.Neighbors {
		view.Neighbors = append(view.Neighbors, neighborView{
			Source:        n.SourceID,
			Target:        n.TargetID,
			Status:        n.Status.String(),
			SourceBearing: n.Source,
			TargetBearing: n.Target,
			Difference:    n.Difference,
			Agrees:        n.Agrees,
		})
	}
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

// Serve exposes the run store over HTTP until ctx is cancelled
func (a *App) Serve(ctx context.Context) error {
	if a.Config.Store.Path == "" {
		return eris.Wrap(config.ErrConfig, "serve needs store.path")
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           newHTTPServer(store),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("HTTP server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "http server")
		}
		return nil
	case <-ctx.Done():
		zap.L().Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "http shutdown")
	}
}
