package geofence

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"geofence-api/internal/geo"
	"geofence-api/internal/geoip"
	"geofence-api/internal/violation"
)

var unitSquare = geo.MustRegion("TestState", [][]geo.Coordinate{{
	{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0}, {Lat: 0, Lng: 0},
}})

var donut = geo.MustRegion("Donut", [][]geo.Coordinate{
	{{Lat: 10, Lng: 10}, {Lat: 10, Lng: 14}, {Lat: 14, Lng: 14}, {Lat: 14, Lng: 10}, {Lat: 10, Lng: 10}},
	{{Lat: 11, Lng: 11}, {Lat: 13, Lng: 11}, {Lat: 13, Lng: 13}, {Lat: 11, Lng: 13}, {Lat: 11, Lng: 11}},
})

// fakeStore：可阻塞、可注入失败的边界存储
type fakeStore struct {
	regions map[string]*geo.Region
	gate    chan struct{}
	fails   atomic.Int32
	calls   atomic.Int32
	loaded  atomic.Bool
}

func newFakeStore(rs ...*geo.Region) *fakeStore {
	f := &fakeStore{regions: map[string]*geo.Region{}}
	for _, r := range rs {
		f.regions[strings.ToLower(r.Name)] = r
	}
	return f
}

func (f *fakeStore) Get(name string) (*geo.Region, bool) {
	if !f.loaded.Load() {
		return nil, false
	}
	r, ok := f.regions[strings.ToLower(strings.TrimSpace(name))]
	return r, ok
}

func (f *fakeStore) Load(ctx context.Context) error {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.fails.Load() > 0 {
		f.fails.Add(-1)
		return errors.New("source down")
	}
	f.loaded.Store(true)
	return nil
}

func loadedStore(t *testing.T, rs ...*geo.Region) *fakeStore {
	t.Helper()
	f := newFakeStore(rs...)
	if err := f.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return f
}

func strict(states ...string) Config {
	return Config{StrictMode: true, AssignedStates: states, UserID: "u1"}
}

func lenient(tolKm float64, states ...string) Config {
	return Config{AllowNearBorder: true, ShowWarnings: true, BorderToleranceKm: tolKm, AssignedStates: states, UserID: "u1"}
}

func TestScenarioUnitSquare(t *testing.T) {
	e := NewEngine(loadedStore(t, unitSquare))

	if r := e.ValidatePoint(0.5, 0.5, strict("TestState")); !r.IsValid || r.Flagged() {
		t.Fatalf("inside point: %+v", r)
	}
	r := e.ValidatePoint(2, 2, strict("TestState"))
	if r.IsValid || r.ViolationType != OutsideAllRegions {
		t.Fatalf("(2,2) strict: %+v", r)
	}
	if r.NearestRegion != "TestState" || !strings.Contains(r.Message, "TestState") {
		t.Fatalf("strict message must name nearest region: %+v", r)
	}
	if r.ViolatingPoint == nil || *r.ViolatingPoint != (geo.Coordinate{Lat: 2, Lng: 2}) {
		t.Fatalf("violating point = %v", r.ViolatingPoint)
	}

	w := e.ValidatePoint(1.05, 0.5, lenient(10, "TestState"))
	if !w.IsValid || w.ViolationType != NearBorderWarning {
		t.Fatalf("(1.05,0.5) tolerance 10: %+v", w)
	}
	if math.Abs(w.NearestDistanceKm-5.56) > 0.01 {
		t.Fatalf("distance = %f, want about 5.56", w.NearestDistanceKm)
	}

	quiet := lenient(10, "TestState")
	quiet.ShowWarnings = false
	if q := e.ValidatePoint(1.05, 0.5, quiet); !q.IsValid || q.Flagged() {
		t.Fatalf("warning must be hidden when ShowWarnings=false: %+v", q)
	}

	far := e.ValidatePoint(1.5, 0.5, lenient(10, "TestState"))
	if far.IsValid || far.ViolationType != OutsideAllRegions {
		t.Fatalf("beyond tolerance: %+v", far)
	}
}

func TestInvalidCoordinates(t *testing.T) {
	e := NewEngine(loadedStore(t, unitSquare))
	for _, c := range []geo.Coordinate{{Lat: 91, Lng: 0}, {Lat: 0, Lng: -181}, {Lat: math.NaN(), Lng: 0}, {Lat: 0, Lng: math.Inf(1)}} {
		r := e.ValidatePoint(c.Lat, c.Lng, lenient(1e6, "TestState"))
		if r.IsValid || r.ViolationType != InvalidCoordinates {
			t.Fatalf("%v: %+v", c, r)
		}
	}
	if r := e.ValidatePoint(95, 0, Config{}); !r.IsValid {
		t.Fatal("unrestricted config is checked before coordinate range")
	}
}

func TestIdempotence(t *testing.T) {
	e := NewEngine(loadedStore(t, unitSquare, donut))
	cfgs := []Config{strict("TestState", "Donut"), lenient(3, "Donut"), lenient(0, "TestState")}
	pts := []geo.Coordinate{{Lat: 0.5, Lng: 0.5}, {Lat: 12, Lng: 12}, {Lat: 1.01, Lng: 0.5}, {Lat: -3, Lng: 7}}
	for _, cfg := range cfgs {
		for _, p := range pts {
			a := e.ValidatePoint(p.Lat, p.Lng, cfg)
			b := e.ValidatePoint(p.Lat, p.Lng, cfg)
			if !reflect.DeepEqual(a, b) {
				t.Fatalf("%v: %+v != %+v", p, a, b)
			}
		}
	}
}

func TestStrictIsMonotonic(t *testing.T) {
	e := NewEngine(loadedStore(t, unitSquare, donut))
	for lat := -1.0; lat <= 15; lat += 0.25 {
		for lng := -1.0; lng <= 15; lng += 0.25 {
			s := e.ValidatePoint(lat, lng, strict("TestState", "Donut"))
			l := e.ValidatePoint(lat, lng, lenient(0, "TestState", "Donut"))
			if s.IsValid && !l.IsValid {
				t.Fatalf("(%v,%v) strict valid but lenient invalid", lat, lng)
			}
			if l.IsValid != s.IsValid {
				t.Fatalf("(%v,%v) zero tolerance must agree with strict: strict=%v lenient=%v", lat, lng, s.IsValid, l.IsValid)
			}
		}
	}
}

func TestUnrestrictedBypass(t *testing.T) {
	e := NewEngine(newFakeStore())
	for _, p := range []geo.Coordinate{{Lat: 0, Lng: 0}, {Lat: 89, Lng: 179}, {Lat: -45, Lng: 100}} {
		if r := e.ValidatePoint(p.Lat, p.Lng, Config{StrictMode: true}); !r.IsValid || r.Flagged() {
			t.Fatalf("%v: %+v", p, r)
		}
	}
	if r := e.ValidatePath([]geo.Coordinate{{Lat: 50, Lng: 50}}, Config{StrictMode: true}); !r.IsValid {
		t.Fatalf("path: %+v", r)
	}
}

func TestVertexAndEdgeInclusive(t *testing.T) {
	e := NewEngine(loadedStore(t, unitSquare))
	for _, p := range []geo.Coordinate{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}, {Lat: 0, Lng: 1}, {Lat: 0.5, Lng: 1}, {Lat: 0, Lng: 0.3}} {
		if r := e.ValidatePoint(p.Lat, p.Lng, strict("TestState")); !r.IsValid {
			t.Fatalf("%v on boundary must be inside: %+v", p, r)
		}
	}
}

func TestHoleExclusion(t *testing.T) {
	e := NewEngine(loadedStore(t, donut))
	r := e.ValidatePoint(12, 12, strict("Donut"))
	if r.IsValid || r.ViolationType != OutsideAllRegions {
		t.Fatalf("hole point: %+v", r)
	}
	if want := geo.Haversine(geo.Coordinate{Lat: 12, Lng: 12}, geo.Coordinate{Lat: 12, Lng: 13}); math.Abs(r.NearestDistanceKm-want) > 0.01 {
		t.Fatalf("hole distance = %f, want distance to hole ring", r.NearestDistanceKm)
	}
	if r := e.ValidatePoint(10.5, 10.5, strict("Donut")); !r.IsValid {
		t.Fatalf("solid part: %+v", r)
	}
}

func TestPathShortCircuit(t *testing.T) {
	var calls int
	e := NewEngine(loadedStore(t, unitSquare)).WithObserver(func(geo.Coordinate, Result) { calls++ })
	cfg := strict("TestState")
	bad := geo.Coordinate{Lat: 2, Lng: 2}
	path := []geo.Coordinate{{Lat: 0.5, Lng: 0.5}, bad, {Lat: 0.25, Lng: 0.25}}

	got := e.ValidatePath(path, cfg)
	if calls != 2 {
		t.Fatalf("evaluated %d points, want 2", calls)
	}
	want := e.ValidatePoint(bad.Lat, bad.Lng, cfg)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("path = %+v, point = %+v", got, want)
	}
	if got.ViolatingPoint == nil || *got.ViolatingPoint != bad {
		t.Fatalf("violating point = %v", got.ViolatingPoint)
	}
}

func TestPathReturnsFirstWarning(t *testing.T) {
	e := NewEngine(loadedStore(t, unitSquare))
	first := geo.Coordinate{Lat: 1.02, Lng: 0.5}
	path := []geo.Coordinate{{Lat: 0.5, Lng: 0.5}, first, {Lat: 1.05, Lng: 0.5}}
	r := e.ValidatePath(path, lenient(10, "TestState"))
	if !r.IsValid || r.ViolationType != NearBorderWarning {
		t.Fatalf("path: %+v", r)
	}
	if *r.ViolatingPoint != first {
		t.Fatalf("warning point = %v, want %v", *r.ViolatingPoint, first)
	}
	if r := e.ValidatePath(nil, strict("TestState")); !r.IsValid {
		t.Fatal("empty path is valid")
	}
}

func TestToleranceIsInclusive(t *testing.T) {
	e := NewEngine(loadedStore(t, unitSquare))
	p := geo.Coordinate{Lat: 1.05, Lng: 0.5}
	d := geo.DistanceToRegionBoundary(p, unitSquare)

	if r := e.ValidatePoint(p.Lat, p.Lng, lenient(d, "TestState")); !r.IsValid {
		t.Fatalf("distance == tolerance must be valid: %+v", r)
	}
	if r := e.ValidatePoint(p.Lat, p.Lng, lenient(math.Nextafter(d, 0), "TestState")); r.IsValid {
		t.Fatalf("distance just above tolerance must be invalid: %+v", r)
	}
}

func TestUnknownRegionFallsThrough(t *testing.T) {
	st := loadedStore(t, unitSquare)
	regions, unknown := NewResolver(st).Resolve([]string{"Atlantis"})
	if len(regions) != 0 || !reflect.DeepEqual(unknown, []string{"Atlantis"}) {
		t.Fatalf("resolve: %v %v", regions, unknown)
	}
	r := NewEngine(st).ValidatePoint(0.5, 0.5, lenient(1000, "Atlantis"))
	if r.IsValid || r.ViolationType != OutsideAllRegions {
		t.Fatalf("Atlantis: %+v", r)
	}
	if len(r.Warnings) != 1 || !strings.Contains(r.Warnings[0], "Atlantis") {
		t.Fatalf("warnings = %v", r.Warnings)
	}
	if r.NearestDistanceKm != 0 || r.NearestRegion != "" {
		t.Fatalf("no nearest region expected: %+v", r)
	}

	mixed := NewEngine(st).ValidatePoint(0.5, 0.5, strict("Atlantis", "testState"))
	if !mixed.IsValid || len(mixed.Warnings) != 1 {
		t.Fatalf("a misspelt name must not lock the user out: %+v", mixed)
	}
}

func TestResolveDedupesAndKeepsOrder(t *testing.T) {
	st := loadedStore(t, unitSquare, donut)
	regions, unknown := NewResolver(st).Resolve([]string{"Donut", " donut ", "", "TestState", "Atlantis"})
	if len(regions) != 2 || regions[0].Name != "Donut" || regions[1].Name != "TestState" {
		t.Fatalf("regions = %v", regions)
	}
	if len(unknown) != 1 {
		t.Fatalf("unknown = %v", unknown)
	}
	m := IsInAnyRegion(geo.Coordinate{Lat: 5, Lng: 5}, nil)
	if m.Matched || m.Nearest != nil || !math.IsInf(m.NearestDistanceKm, 1) {
		t.Fatalf("empty region list: %+v", m)
	}
}

type panicLookup struct{}

func (panicLookup) Get(string) (*geo.Region, bool) { panic("corrupt index") }

func TestPanicBecomesUnknownViolation(t *testing.T) {
	e := NewEngine(panicLookup{})
	r := e.ValidatePoint(0.5, 0.5, strict("TestState"))
	if r.IsValid || r.ViolationType != UnknownViolation {
		t.Fatalf("point: %+v", r)
	}
	p := e.ValidatePath([]geo.Coordinate{{Lat: 0.5, Lng: 0.5}}, strict("TestState"))
	if p.IsValid || p.ViolationType != UnknownViolation || p.ViolatingPoint != nil {
		t.Fatalf("path: %+v", p)
	}
}

func TestValidateRegionName(t *testing.T) {
	e := NewEngine(loadedStore(t, unitSquare))
	if r := e.ValidateRegionName("teststate", strict("TestState")); !r.IsValid {
		t.Fatalf("match: %+v", r)
	}
	if r := e.ValidateRegionName("Elsewhere", strict("TestState")); r.IsValid || r.ViolationType != OutsideAllRegions {
		t.Fatalf("mismatch: %+v", r)
	}
	r := e.ValidateRegionName("Atlantis", strict("Atlantis", "TestState"))
	if r.IsValid || len(r.Warnings) != 1 {
		t.Fatalf("a name without boundary data must not match: %+v", r)
	}
}

func waitState(t *testing.T, p *Preloader, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for p.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", p.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPreloadSharesInFlightLoad(t *testing.T) {
	st := newFakeStore(unitSquare)
	st.gate = make(chan struct{})
	p := NewPreloader(st)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.Preload(context.Background())
		}()
	}
	waitState(t, p, StateLoading)
	close(st.gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if n := st.calls.Load(); n != 1 {
		t.Fatalf("load called %d times, want 1", n)
	}
	if !p.IsLoaded() {
		t.Fatal("not loaded")
	}
	if err := p.Preload(context.Background()); err != nil || p.Loads() != 1 {
		t.Fatalf("second preload: err=%v loads=%d", err, p.Loads())
	}
}

func TestPreloadRetriesAfterFailure(t *testing.T) {
	st := newFakeStore(unitSquare)
	st.fails.Store(1)
	svc := NewService(st)

	if err := svc.Preload(context.Background()); err == nil {
		t.Fatal("first preload must fail")
	}
	if svc.State() != StateFailed || svc.Err() == nil {
		t.Fatalf("state = %s err = %v", svc.State(), svc.Err())
	}
	s := svc.NewSession(strict("TestState"))
	if r := s.ValidatePoint(context.Background(), 2, 2); !r.IsValid || r.ViolationType != DataUnavailable {
		t.Fatalf("failed load must degrade: %+v", r)
	}
	if err := svc.Preload(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if st.calls.Load() != 2 {
		t.Fatalf("calls = %d", st.calls.Load())
	}
	if r := s.ValidatePoint(context.Background(), 2, 2); r.IsValid {
		t.Fatalf("loaded data must be enforced: %+v", r)
	}
}

func TestPreloadCallerTimeoutDoesNotCancelLoad(t *testing.T) {
	st := newFakeStore(unitSquare)
	st.gate = make(chan struct{})
	p := NewPreloader(st)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Preload(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	close(st.gate)
	if err := p.Preload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st.calls.Load() != 1 {
		t.Fatalf("calls = %d", st.calls.Load())
	}
}

func TestValidationBeforePreloadDegrades(t *testing.T) {
	svc := NewService(newFakeStore(unitSquare))
	s := svc.NewSession(strict("TestState"))
	ctx := context.Background()

	r := s.ValidatePoint(ctx, 2, 2)
	if !r.IsValid || r.ViolationType != DataUnavailable || r.Message == "" {
		t.Fatalf("degraded: %+v", r)
	}
	if p := s.ValidatePath(ctx, []geo.Coordinate{{Lat: 2, Lng: 2}}); p.ViolationType != DataUnavailable {
		t.Fatalf("degraded path: %+v", p)
	}
	if bad := s.ValidatePoint(ctx, 95, 0); bad.IsValid || bad.ViolationType != InvalidCoordinates {
		t.Fatalf("invalid coordinates are rejected even without data: %+v", bad)
	}
	if bad := s.ValidatePath(ctx, []geo.Coordinate{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 200}}); bad.ViolationType != InvalidCoordinates {
		t.Fatalf("path with invalid coordinates: %+v", bad)
	}
	for _, v := range s.RecentViolations(10) {
		if v.Type == string(DataUnavailable) {
			t.Fatal("data_unavailable must not be recorded as a violation")
		}
	}
	if svc.State() != StateIdle {
		t.Fatalf("validation must not start a load, state = %s", svc.State())
	}
}

func TestValidationAwaitsInFlightPreload(t *testing.T) {
	st := newFakeStore(unitSquare)
	st.gate = make(chan struct{})
	svc := NewService(st)
	go svc.Preload(context.Background())
	waitState(t, svc.pre, StateLoading)

	s := svc.NewSession(strict("TestState"))
	out := make(chan Result, 1)
	go func() { out <- s.ValidatePoint(context.Background(), 2, 2) }()

	select {
	case r := <-out:
		t.Fatalf("returned before load completed: %+v", r)
	case <-time.After(20 * time.Millisecond):
	}
	close(st.gate)
	r := <-out
	if r.IsValid || r.ViolationType != OutsideAllRegions {
		t.Fatalf("after load: %+v", r)
	}
}

func TestPathAwaitsInFlightPreload(t *testing.T) {
	st := newFakeStore(unitSquare)
	st.gate = make(chan struct{})
	svc := NewService(st)
	go svc.Preload(context.Background())
	waitState(t, svc.pre, StateLoading)

	s := svc.NewSession(strict("TestState"))
	path := []geo.Coordinate{{Lat: 2, Lng: 2}, {Lat: 0, Lng: 200}}
	out := make(chan Result, 1)
	go func() { out <- s.ValidatePath(context.Background(), path) }()

	select {
	case r := <-out:
		t.Fatalf("returned before load completed: %+v", r)
	case <-time.After(20 * time.Millisecond):
	}
	close(st.gate)
	r := <-out
	if r.IsValid || r.ViolationType != OutsideAllRegions {
		t.Fatalf("first failing point in order must win: %+v", r)
	}
	if r.ViolatingPoint == nil || *r.ViolatingPoint != path[0] {
		t.Fatalf("violating point = %v, want %v", r.ViolatingPoint, path[0])
	}
	if again := s.ValidatePath(context.Background(), path); !reflect.DeepEqual(again, r) {
		t.Fatalf("verdict changed after load: %+v != %+v", again, r)
	}
}

func TestNonFiniteCoordinatesKeepLogEncodable(t *testing.T) {
	svc := NewService(loadedStore(t, unitSquare))
	_ = svc.Preload(context.Background())
	s := svc.NewSession(strict("TestState"))
	ctx := context.Background()

	if s.IsPointValid(ctx, math.NaN(), 0) || s.IsPointValid(ctx, 0, math.Inf(-1)) {
		t.Fatal("non-finite coordinates must be invalid")
	}
	got := s.RecentViolations(-1)
	if len(got) != 2 || got[0].Type != string(InvalidCoordinates) || got[0].Message == "" {
		t.Fatalf("entries = %+v", got)
	}
	if _, err := json.Marshal(got); err != nil {
		t.Fatalf("violation log must stay encodable: %v", err)
	}
}

type recordingSink struct {
	mu      sync.Mutex
	entries []violation.Entry
	err     error
}

func (s *recordingSink) WriteViolation(_ context.Context, e violation.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.err
}

func TestSessionRecordsViolations(t *testing.T) {
	sink := &recordingSink{}
	svc := NewService(loadedStore(t, unitSquare), WithSink(sink), WithViolationCapacity(2))
	if err := svc.Preload(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := svc.NewSession(lenient(10, "TestState"))
	ctx := context.Background()

	s.ValidatePoint(ctx, 0.5, 0.5)
	s.ValidatePoint(ctx, 1.05, 0.5)
	if n := len(s.RecentViolations(10)); n != 0 {
		t.Fatalf("valid and warning results are not violations, got %d", n)
	}
	s.ValidatePoint(ctx, 3, 3)
	s.ValidatePoint(ctx, 4, 4)
	s.ValidatePoint(ctx, 5, 5)
	got := s.RecentViolations(-1)
	if len(got) != 2 || got[0].Point.Lat != 4 || got[1].Point.Lat != 5 {
		t.Fatalf("recent = %+v", got)
	}
	if got[1].UserID != "u1" || got[1].Type != string(OutsideAllRegions) {
		t.Fatalf("entry = %+v", got[1])
	}
	if len(sink.entries) != 3 {
		t.Fatalf("sink got %d entries", len(sink.entries))
	}
	s.ClearViolations()
	if len(s.RecentViolations(5)) != 0 {
		t.Fatal("clear")
	}
	if !s.IsPointValid(ctx, 0.5, 0.5) || s.IsPointValid(ctx, 7, 7) {
		t.Fatal("IsPointValid")
	}
}

func TestSinkFailureDoesNotChangeResult(t *testing.T) {
	sink := &recordingSink{err: errors.New("db down")}
	svc := NewService(loadedStore(t, unitSquare), WithSink(sink))
	_ = svc.Preload(context.Background())
	s := svc.NewSession(strict("TestState"))
	r := s.ValidatePoint(context.Background(), 2, 2)
	if r.IsValid || r.ViolationType != OutsideAllRegions {
		t.Fatalf("result = %+v", r)
	}
	if len(s.RecentViolations(1)) != 1 {
		t.Fatal("violation must still be kept in the session log")
	}
}

func TestSessionsHaveIndependentLogs(t *testing.T) {
	svc := NewService(loadedStore(t, unitSquare))
	_ = svc.Preload(context.Background())
	a := svc.NewSession(strict("TestState"))
	b := svc.NewSession(strict("TestState"))
	a.ValidatePoint(context.Background(), 2, 2)
	if len(b.RecentViolations(-1)) != 0 {
		t.Fatal("session logs must not be shared")
	}
}

type fakeLocator map[string]geoip.Location

func (f fakeLocator) Locate(_ context.Context, ip string) (geoip.Location, error) {
	loc, ok := f[ip]
	if !ok {
		return geoip.Location{}, geoip.ErrNoLocation
	}
	return loc, nil
}

func TestValidateIP(t *testing.T) {
	loc := fakeLocator{
		"10.0.0.1": {Coordinate: geo.Coordinate{Lat: 0.5, Lng: 0.5}, HasCoordinate: true, Source: "maxmind"},
		"10.0.0.2": {Coordinate: geo.Coordinate{Lat: 3, Lng: 3}, HasCoordinate: true, Source: "maxmind"},
		"10.0.0.3": {Province: "TestState", Source: "ip2region"},
		"10.0.0.4": {Province: "Elsewhere", Source: "ip2region"},
	}
	svc := NewService(loadedStore(t, unitSquare), WithIPLocator(loc))
	_ = svc.Preload(context.Background())
	s := svc.NewSession(strict("TestState"))
	ctx := context.Background()

	cases := []struct {
		ip    string
		valid bool
	}{
		{"10.0.0.1", true},
		{"10.0.0.2", false},
		{"10.0.0.3", true},
		{"10.0.0.4", false},
	}
	for _, c := range cases {
		r, err := s.ValidateIP(ctx, c.ip)
		if err != nil {
			t.Fatalf("%s: %v", c.ip, err)
		}
		if r.IsValid != c.valid {
			t.Fatalf("%s: %+v", c.ip, r)
		}
	}
	if _, err := s.ValidateIP(ctx, "192.0.2.1"); !errors.Is(err, geoip.ErrNoLocation) {
		t.Fatalf("err = %v", err)
	}
	if n := len(s.RecentViolations(-1)); n != 2 {
		t.Fatalf("violations = %d, want 2", n)
	}

	bare := NewService(loadedStore(t, unitSquare)).NewSession(strict("TestState"))
	if _, err := bare.ValidateIP(ctx, "10.0.0.1"); !errors.Is(err, geoip.ErrNoDatabase) {
		t.Fatalf("err = %v", err)
	}
}
