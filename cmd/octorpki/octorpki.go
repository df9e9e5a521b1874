package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/getsentry/sentry-go"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	jcfg "github.com/uber/jaeger-client-go/config"

	"github.com/carlosm3011/rpki-validator/internal/events"
	"github.com/carlosm3011/rpki-validator/internal/fetcher"
	"github.com/carlosm3011/rpki-validator/internal/model"
	"github.com/carlosm3011/rpki-validator/internal/oracle"
	"github.com/carlosm3011/rpki-validator/internal/rlog"
	"github.com/carlosm3011/rpki-validator/internal/rsync"
	"github.com/carlosm3011/rpki-validator/internal/scheduler"
	"github.com/carlosm3011/rpki-validator/internal/store"
	"github.com/carlosm3011/rpki-validator/internal/talfile"
	"github.com/carlosm3011/rpki-validator/internal/walker"
)

var (
	version    = ""
	buildinfos = ""
	AppVersion = "rpki-validator " + version + " " + buildinfos

	AllowRoot = flag.Bool("allow.root", false, "Allow starting as root")

	TALPaths = flag.String("tal", "tals/afrinic.tal,tals/apnic.tal,tals/arin.tal,tals/lacnic.tal,tals/ripe.tal", "List of TAL files separated by comma")
	Basepath = flag.String("cache", "cache/", "Base directory to store the rsync mirror and object store")
	LogLevel = flag.String("loglevel", "info", "Log level")
	Refresh  = flag.Duration("refresh", 20*time.Minute, "Interval between scheduler ticks")

	MaxStaleDays = flag.Int("validator.max-stale-days", 7, "Grace period, in days, an expired object is still accepted with a warning")
	MaxDepth     = flag.Int("validator.max-depth", walker.DefaultMaxDepth, "Maximum publication-point tree depth a walk will descend")

	RsyncTimeout = flag.Duration("rsync.timeout", 20*time.Minute, "Rsync command timeout")
	RsyncBin     = flag.String("rsync.bin", "", "The rsync binary to use (defaults to whatever is on PATH)")

	Mode = flag.String("mode", "server", "Select output mode (server/oneoff)")

	Addr        = flag.String("http.addr", ":8081", "Listening address")
	CacheHeader = flag.Bool("http.cache", true, "Enable cache header")
	MetricsPath = flag.String("http.metrics", "/metrics", "Prometheus metrics endpoint")
	InfoPath    = flag.String("http.info", "/infos", "Information URL")
	HealthPath  = flag.String("http.health", "/health", "Health URL")

	CorsOrigins = flag.String("cors.origins", "*", "Cors origins separated by comma")
	CorsCreds   = flag.Bool("cors.creds", false, "Cors enable credentials")

	Output           = flag.String("output.roa", "output.json", "Output ROA file (oneoff mode; empty writes to stdout)")
	Sign             = flag.Bool("output.sign", true, "Sign output (GoRTR compatible)")
	SignKey          = flag.String("output.sign.key", "private.pem", "ECDSA signing key")
	ValidityDuration = flag.Duration("output.sign.validity", time.Hour, "Validity of the published ROA snapshot")

	Pprof     = flag.Bool("pprof", false, "Enable pprof endpoint")
	Tracer    = flag.Bool("tracer", false, "Enable tracer")
	SentryDSN = flag.String("sentry.dsn", "", "Send errors to Sentry")

	Version = flag.Bool("version", false, "Print version")
)

var errKeyNotParsed = fmt.Errorf("failed to PEM decode key")

// ReadKey decodes an ECDSA private key, PEM-wrapped when isPem is set,
// used to sign the published ROA snapshot (teacher's `-output.sign.key`).
func ReadKey(key []byte, isPem bool) (*ecdsa.PrivateKey, error) {
	if isPem {
		block, _ := pem.Decode(key)
		if block == nil {
			return nil, errKeyNotParsed
		}
		key = block.Bytes
	}
	return x509.ParseECPrivateKey(key)
}

func runningAsRoot() bool {
	return os.Geteuid() == 0 || os.Getegid() == 0
}

// taRunner is the scheduler.Runner driving one trust anchor's walk: it
// builds a fresh fetcher chain per invocation (the rsync Invoker and
// the caching fetcher carry per-walk mutable state, so they are never
// shared across concurrently running trust anchors, spec §5), wires
// per-run-scoped listeners onto it, and reports the walk's full result
// map back to the scheduler.
type taRunner struct {
	basepath     string
	rsyncBin     string
	rsyncTimeout time.Duration
	maxStaleDays int
	maxDepth     int

	store  *store.Store
	oracle *oracle.Oracle
	log    rlog.Logger

	metrics   *events.Metrics
	publisher *events.ROAPublisher

	tracerEnabled bool
}

func newTaRunner(basepath, rsyncBin string, rsyncTimeout time.Duration, maxStaleDays, maxDepth int, st *store.Store, o *oracle.Oracle, log rlog.Logger, metrics *events.Metrics, publisher *events.ROAPublisher, tracerEnabled bool) *taRunner {
	return &taRunner{
		basepath:      basepath,
		rsyncBin:      rsyncBin,
		rsyncTimeout:  rsyncTimeout,
		maxStaleDays:  maxStaleDays,
		maxDepth:      maxDepth,
		store:         st,
		oracle:        o,
		log:           log,
		metrics:       metrics,
		publisher:     publisher,
		tracerEnabled: tracerEnabled,
	}
}

// Run implements scheduler.Runner: fetch the trust anchor certificate,
// walk its publication-point tree, and publish the ROAs it found.
func (r *taRunner) Run(ctx context.Context, ta model.TrustAnchor) (model.ValidatedObjects, error) {
	invoker := rsync.NewCommand(r.rsyncBin)
	remote := fetcher.NewRemoteFetcher(invoker, filepath.Join(r.basepath, ta.Locator.CaName), r.rsyncTimeout, r.log)
	remote.OnMetric(r.metrics.ObserveFetch)

	consistent := fetcher.NewConsistentFetcher(remote, r.store, r.oracle)
	validating := fetcher.NewValidatingFetcher(consistent, r.oracle, r.maxStaleDays)
	notifying := fetcher.NewNotifyingFetcher(validating)
	caching := fetcher.NewCachingFetcher(notifying)
	validating.SetOuterMostDecorator(caching)

	taMetrics := r.metrics.ForTrustAnchor(ta.Locator.CaName)
	roaCollector := events.NewROACollector(nil, false)
	roaCollector.SetCurrentTA(ta.Locator.CaName)
	collector := events.NewResultCollector()
	logger := events.NewLoggerListener(r.log)
	sentryListener := events.NewSentry()
	sentryListener.SetCurrentTA(ta.Locator.CaName)

	notifying.AddListener(taMetrics)
	notifying.AddListener(roaCollector)
	notifying.AddListener(collector)
	notifying.AddListener(logger)
	notifying.AddListener(sentryListener)

	var span opentracing.Span
	if r.tracerEnabled {
		span = opentracing.GlobalTracer().StartSpan("trust-anchor-validation")
		span.SetTag("ta", ta.Locator.CaName)
		defer span.Finish()
		notifying.AddListener(events.NewTracing(span))
	}

	notifying.OnPanic(func(i int, rec any) {
		r.log.Warnf("trust anchor %s: listener %d panicked: %v", ta.Locator.CaName, i, rec)
	})

	result := model.NewValidationResult()
	octx, mismatch, ok := r.bootstrap(ctx, caching, ta.Locator, result)
	if !ok && mismatch.Uri == "" {
		return nil, fmt.Errorf("unable to fetch a trusted certificate for %s", ta.Locator.CaName)
	}
	if !ok {
		// A public-key mismatch on an otherwise well-formed TA cert is
		// a completed, successful run that found nothing valid (spec
		// §8 scenario 3): the walker never runs, and the mismatched
		// cert is surfaced as an InvalidObject rather than whatever
		// the fetch chain's own listeners recorded it as, so the
		// scheduler reschedules +4h instead of treating this as a
		// Failure. See DESIGN.md's cmd/octorpki Open Question entry.
		objects := collector.Objects()
		objects[mismatch.Uri] = mismatch
		return objects, nil
	}

	for _, uri := range ta.Locator.PrefetchUris {
		caching.Prefetch(ctx, uri, result)
	}

	w := walker.New(caching, r.maxDepth)
	w.AddTrustAnchor(octx)
	w.Execute(ctx, result)

	r.publisher.Publish(ta.Locator.CaName, roaCollector.Entries())

	return collector.Objects(), nil
}

// bootstrap tries each of the locator's certificate locations in turn
// until one yields a certificate whose public key matches the TAL
// (spec §4.H's trust anchor bootstrap). A confirmed SPKI mismatch is
// reported back as its own outcome (ok=false, a non-empty mismatch)
// rather than folded into the "no usable cert anywhere" failure case.
func (r *taRunner) bootstrap(ctx context.Context, chain *fetcher.CachingFetcher, locator model.TrustAnchorLocator, result *model.ValidationResult) (octx *model.ValidationContext, mismatch model.ValidatedObject, ok bool) {
	for _, loc := range locator.CertificateLocations {
		obj, fetched := chain.Fetch(ctx, loc, model.ArbitraryURISpec, nil, result)
		if !fetched {
			continue
		}
		cert, isCert := obj.(model.X509ResourceCertificate)
		if !isCert {
			continue
		}
		if cert.SubjectPublicKeyInfo() != locator.PublicKeyInfo {
			check := model.NewCheck(model.CheckTrustAnchorPublicKeyMatch, model.Failed, loc)
			result.Push(loc)
			result.AddCheck(check)
			result.Pop()
			return nil, model.NewInvalidObject(loc, result.ChecksAt(loc)), false
		}
		return &model.ValidationContext{Parent: cert, RepositoryUri: loc, ManifestUri: cert.ManifestUri()}, model.ValidatedObject{}, true
	}
	return nil, model.ValidatedObject{}, false
}

// apiServer exposes the ROA snapshot, health and info endpoints over
// HTTP, the same three routes the teacher serves from OctoRPKI.Serve.
type apiServer struct {
	sched       *scheduler.Scheduler
	publisher   *events.ROAPublisher
	validity    time.Duration
	cacheHeader bool
}

func (s *apiServer) ServeROAs(w http.ResponseWriter, r *http.Request) {
	snap, err := s.publisher.Snapshot(time.Now(), s.validity)
	if err != nil {
		log.Warnf("building ROA snapshot: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	maxAge := int(s.validity.Seconds())
	if maxAge > 0 && s.cacheHeader {
		w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%v", maxAge))
	}

	etag := sha256.New()
	fmt.Fprintf(etag, "%v/%v", snap.Metadata.Generated, snap.Metadata.Counts)
	etagSumHex := hex.EncodeToString(etag.Sum(nil))

	if match := r.Header.Get("If-None-Match"); match != "" && match == etagSumHex {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Etag", etagSumHex)
	json.NewEncoder(w).Encode(snap)
}

// ServeHealth reports healthy once every enabled trust anchor has
// completed at least one validation pass. Unlike the teacher's single
// global Stable flag, trust anchors here run independently (spec §5),
// so health is the conjunction across all of them rather than one
// shared iteration counter.
func (s *apiServer) ServeHealth(w http.ResponseWriter, r *http.Request) {
	for _, ta := range s.sched.Image().TrustAnchors.All() {
		if ta.Enabled && !ta.HasLastUpdated {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready yet"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

type infoTrustAnchor struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Running     bool   `json:"running"`
	LastUpdated int64  `json:"last-updated,omitempty"`
	LastError   string `json:"last-error,omitempty"`
	NextUpdate  int64  `json:"next-update,omitempty"`
}

type infoResult struct {
	TAs      []infoTrustAnchor `json:"tas"`
	ROACount int               `json:"roas-count"`
}

func (s *apiServer) ServeInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var tas []infoTrustAnchor
	for _, ta := range s.sched.Image().TrustAnchors.All() {
		entry := infoTrustAnchor{
			Name:    ta.Locator.CaName,
			Enabled: ta.Enabled,
			Running: ta.Status.IsRunning(),
		}
		if ta.HasLastUpdated {
			entry.LastUpdated = ta.LastUpdated.Unix()
		}
		if ta.Status.IsIdle() {
			entry.NextUpdate = ta.Status.NextUpdate.Unix()
			entry.LastError = ta.Status.ErrorMessage
		}
		tas = append(tas, entry)
	}

	roaCount := 0
	if snap, err := s.publisher.Snapshot(time.Now(), s.validity); err == nil {
		roaCount = len(snap.Data)
	}

	json.NewEncoder(w).Encode(infoResult{TAs: tas, ROACount: roaCount})
}

func (s *apiServer) Serve(addr, path, metricsPath, infoPath, healthPath, corsOrigin string, corsCreds bool) {
	fullPath := path
	if len(path) > 0 && string(path[0]) != "/" {
		fullPath = "/" + path
	}
	log.Infof("Serving HTTP on %v%v", addr, fullPath)

	mux := http.NewServeMux()
	mux.HandleFunc(fullPath, s.ServeROAs)
	mux.HandleFunc(infoPath, s.ServeInfo)
	mux.HandleFunc(healthPath, s.ServeHealth)
	mux.Handle(metricsPath, promhttp.Handler())

	if *Pprof {
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		mux.HandleFunc("/debug/pprof/", pprof.Index)
	}

	handler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(corsOrigin, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowCredentials: corsCreds,
	}).Handler(mux)

	log.Fatal(http.ListenAndServe(addr, handler))
}

func init() {
	if !*AllowRoot && runningAsRoot() {
		panic("Running as root is not allowed by default")
	}
}

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	flag.Parse()
	if *Version {
		fmt.Println(AppVersion)
		os.Exit(0)
	}

	lvl, err := log.ParseLevel(*LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(lvl)

	sentryDsn := *SentryDSN
	if sentryDsn == "" {
		sentryDsn = os.Getenv("SENTRY_DSN")
	}
	if sentryDsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: sentryDsn}); err != nil {
			log.Fatalf("failed initializing sentry: %s", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	log.Info("Validator started")

	if *Tracer {
		cfg, err := jcfg.FromEnv()
		if err != nil {
			log.Fatal(err)
		}
		tracer, closer, err := cfg.NewTracer()
		if err != nil {
			log.Fatal(err)
		}
		defer closer.Close()
		opentracing.SetGlobalTracer(tracer)
	}

	if err := os.MkdirAll(*Basepath, os.ModePerm); err != nil {
		log.Fatal(err)
	}

	locators, err := talfile.ParseAll(strings.Split(*TALPaths, ","))
	if err != nil {
		log.Fatal(err)
	}

	now := time.Now()
	tas := make([]model.TrustAnchor, 0, len(locators))
	for _, locator := range locators {
		tas = append(tas, model.NewTrustAnchor(locator, now))
	}
	ref := scheduler.NewRef(model.NewMemoryImage(model.NewTrustAnchors(tas)))

	logger := rlog.NewLogrus(log.StandardLogger())
	sched := scheduler.New(ref, logger)

	metrics := events.NewMetrics(prometheus.DefaultRegisterer)

	var signKey *ecdsa.PrivateKey
	if *Sign {
		keyBytes, err := os.ReadFile(*SignKey)
		if err != nil {
			log.Fatal(err)
		}
		signKey, err = ReadKey(keyBytes, true)
		if err != nil {
			log.Fatal(err)
		}
	}
	publisher := events.NewROAPublisher(signKey, *Sign)

	db, err := dbm.NewGoLevelDB("objects", *Basepath)
	if err != nil {
		log.Fatal(err)
	}
	objectStore := store.New(db)

	runner := newTaRunner(*Basepath, *RsyncBin, *RsyncTimeout, *MaxStaleDays, *MaxDepth, objectStore, oracle.New(), logger, metrics, publisher, *Tracer)

	api := &apiServer{sched: sched, publisher: publisher, validity: *ValidityDuration, cacheHeader: *CacheHeader}

	if *Mode == "server" {
		go api.Serve(*Addr, *Output, *MetricsPath, *InfoPath, *HealthPath, *CorsOrigins, *CorsCreds)
	} else if *Mode != "oneoff" {
		log.Fatalf("Mode %v is not specified. Choose either server or oneoff", *Mode)
	}

	ticker := time.NewTicker(*Refresh)
	defer ticker.Stop()

	for {
		t1 := time.Now()
		if err := sched.RunDue(context.Background(), runner); err != nil {
			log.Warnf("validation pass returned error: %v", err)
		}
		metrics.ObserveOperation("validation", time.Since(t1))

		if *Mode == "oneoff" {
			writeSnapshot(publisher, *ValidityDuration, *Output)
			log.Info("oneoff validation complete, terminating")
			break
		}

		log.Infof("validation pass complete, next pass in %v", *Refresh)
		<-ticker.C
	}
}

func writeSnapshot(publisher *events.ROAPublisher, validity time.Duration, output string) {
	snap, err := publisher.Snapshot(time.Now(), validity)
	if err != nil {
		log.Fatal(err)
	}

	if output == "" {
		json.NewEncoder(os.Stdout).Encode(snap)
		return
	}

	f, err := os.Create(output)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	json.NewEncoder(f).Encode(snap)
}
